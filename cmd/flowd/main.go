// flowd is the OpenAlgo Flow daemon: it serves the workflow API, receives
// webhooks, and arms schedule and price-alert triggers for active workflows.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/jedilord/openalgo-flow/pkg/broker/openalgo"
	"github.com/jedilord/openalgo-flow/pkg/eventbus"
	"github.com/jedilord/openalgo-flow/pkg/execution"
	"github.com/jedilord/openalgo-flow/pkg/log"
	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/nodes"
	"github.com/jedilord/openalgo-flow/pkg/options"
	"github.com/jedilord/openalgo-flow/pkg/orders"
	"github.com/jedilord/openalgo-flow/pkg/otelhelper"
	"github.com/jedilord/openalgo-flow/pkg/persistence/file"
	"github.com/jedilord/openalgo-flow/pkg/stream"
	"github.com/jedilord/openalgo-flow/pkg/triggers"
	"github.com/jedilord/openalgo-flow/pkg/triggers/manager"
	"github.com/jedilord/openalgo-flow/pkg/triggers/pricealert"
	"github.com/jedilord/openalgo-flow/pkg/triggers/webhook"
	"github.com/jedilord/openalgo-flow/pkg/web"
)

const defaultPort = 8081

func main() {
	logger := log.WithModule("flowd")

	app := &cli.Command{
		Name:                  "flowd",
		Usage:                 "Run the trading workflow engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for workflow and run storage",
				Value:   "./data",
				Sources: cli.EnvVars("DATA_DIR"),
			},
			&cli.StringFlag{
				Name:     "openalgo-url",
				Usage:    "Base URL of the OpenAlgo gateway",
				Required: true,
				Sources:  cli.EnvVars("OPENALGO_URL"),
			},
			&cli.StringFlag{
				Name:     "openalgo-api-key",
				Usage:    "API key for the OpenAlgo gateway",
				Required: true,
				Sources:  cli.EnvVars("OPENALGO_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "openalgo-ws-url",
				Usage:   "WebSocket URL for the market data feed",
				Sources: cli.EnvVars("OPENALGO_WS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Error("flowd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("flowd")
	logger.InfoContext(ctx, "Initializing OpenAlgo Flow")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := file.NewRepository(command.String("data-dir"))
	defer func() {
		if err := repo.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close repository", "error", err)
		}
	}()

	client := openalgo.NewClient(
		command.String("openalgo-url"),
		command.String("openalgo-api-key"),
		logger,
	)

	resolver := options.NewResolver(client, client, logger)
	orchestrator := orders.New(client, resolver, logger)

	registry := nodes.NewRegistry(nodes.Deps{
		Client:       client,
		Orchestrator: orchestrator,
	})

	bus := eventbus.NewChannelEventBus(logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	engine := execution.NewEngine(registry, logger).WithEventBus(bus)

	if tracer, err := otelhelper.NewTracer(ctx, "openalgo-flow"); err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)
	} else {
		engine.WithTracer(tracer)
	}

	runner := execution.NewRunner(repo, engine)

	// Every trigger path funnels through here: run, then persist the record.
	dispatch := func(ctx context.Context, workflowID string, seed map[string]any) error {
		exec, err := runner.ExecuteWorkflow(ctx, workflowID, seed)
		if err != nil {
			return err
		}

		if err := repo.SaveExecution(ctx, exec); err != nil {
			logger.ErrorContext(ctx, "Failed to persist execution",
				"execution_id", exec.ID, "error", err)
		}

		if exec.Status == models.ExecutionStatusFailed {
			logger.WarnContext(ctx, "Workflow run failed",
				"workflow_id", workflowID,
				"execution_id", exec.ID,
				"failed_node", exec.FailedNodeID,
				"error", exec.Error,
			)
		}

		return nil
	}

	armer, err := startTriggers(ctx, command, repo, dispatch, logger)
	if err != nil {
		return err
	}
	defer armer.Stop(ctx)

	receiver := webhook.NewReceiver(repo, logger)
	if err := receiver.Start(ctx, dispatch); err != nil {
		return err
	}

	handlers := web.NewAPIHandlers(repo, runner, receiver, registry, logger).WithArmer(armer)
	app := web.NewApp(handlers)

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Starting API server", "port", command.Int("port"))

	return app.Listen(":" + strconv.Itoa(command.Int("port")))
}

// startTriggers connects the market data feed when configured and arms
// schedule and price-alert triggers for active workflows. Without a feed
// URL, price alerts stay dormant and schedules still run.
func startTriggers(
	ctx context.Context,
	command *cli.Command,
	repo *file.Repository,
	dispatch triggers.Callback,
	logger *slog.Logger,
) (*manager.Manager, error) {
	var feed stream.Subscriber

	if wsURL := command.String("openalgo-ws-url"); wsURL != "" {
		ws := stream.NewWSClient(wsURL, command.String("openalgo-api-key"), logger)
		if err := ws.Connect(ctx); err != nil {
			logger.WarnContext(ctx, "Market data feed unavailable", "error", err)
		} else {
			feed = ws

			go func() {
				<-ctx.Done()

				if err := ws.Close(); err != nil {
					logger.Error("Failed to close market data feed", "error", err)
				}
			}()
		}
	}

	if feed == nil {
		feed = stream.NopSubscriber{}
	}

	monitor := pricealert.NewMonitor(feed, logger)

	m := manager.New(repo, monitor, logger)
	if err := m.Start(ctx, dispatch); err != nil {
		return nil, err
	}

	return m, nil
}
