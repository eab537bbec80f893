package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jihwankim/aegis-agent/pkg/agent"
	"github.com/jihwankim/aegis-agent/pkg/anomaly"
	"github.com/jihwankim/aegis-agent/pkg/baseline"
	"github.com/jihwankim/aegis-agent/pkg/config"
	"github.com/jihwankim/aegis-agent/pkg/logging"
	"github.com/jihwankim/aegis-agent/pkg/metrics"
	"github.com/jihwankim/aegis-agent/pkg/pipeline"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
	"github.com/jihwankim/aegis-agent/pkg/transport"
)

const defaultConfigPath = "aegis-agent.conf"

func newRunCmd(verbose *bool) *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "run [config_path]",
		Short: "Run the agent until stopped by SIGINT, SIGTERM, or an emergency stop file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := defaultConfigPath
			if len(args) == 1 {
				configPath = args[0]
			}
			return runAgent(cmd.Context(), configPath, *verbose, printConfig)
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the effective configuration as YAML and exit")

	return cmd
}

func runAgent(ctx context.Context, configPath string, verbose, printConfig bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if printConfig {
		dump, err := cfg.Dump()
		if err != nil {
			return err
		}
		fmt.Print(dump)
		return nil
	}

	level := "info"
	if verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{Level: level, Format: "json", Output: os.Stderr})

	collector, err := telemetry.NewHostCollector(telemetry.HostCollectorConfig{RootPath: cfg.TelemetryRootPath})
	if err != nil {
		return fmt.Errorf("init collector: %w", err)
	}

	stopper := agent.NewStopper(agent.StopperConfig{StopFile: cfg.EmergencyStopFile})
	stopper.Start(ctx)

	registry := metrics.NewRegistry()
	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	go func() {
		if err := registry.Serve(metricsCtx, cfg.MetricsListenAddr); err != nil {
			logger.Error("metrics server stopped with error", "error", err)
		}
	}()

	loop := agent.New(agent.Params{
		Config:    cfg,
		Logger:    logger,
		Collector: collector,
		Baseline:  baseline.New(),
		Pipeline:  pipeline.New(),
		Anomaly:   anomaly.New(),
		Emitter:   transport.NewEmitter(transport.NewStdoutSink(os.Stdout, cfg.CloudEndpointURL)),
		Stopper:   stopper,
		Metrics:   registry,
	})

	logger.Info("agent starting", "mode", string(cfg.Mode), "config_path", configPath)

	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("agent loop: %w", err)
	}

	logger.Info("agent stopped")
	return nil
}
