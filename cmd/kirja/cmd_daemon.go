package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/yairfalse/kirja/internal/app"
	"github.com/yairfalse/kirja/internal/daemon"
	"github.com/yairfalse/kirja/internal/telemetry"
	"github.com/yairfalse/kirja/pkg/inventory"
)

var (
	daemonInterval time.Duration
	daemonKinds    []string
	daemonListen   string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Collect inventories on an interval",
	Long: `Run kirja in daemon mode, for hosts without an external scheduler.

Every interval each configured kind is collected and uploaded exactly as
"kirja collect" would. A failed kind is logged and retried on the next
tick; the daemon keeps running until SIGTERM/SIGINT.

Health checks are served on /healthz, /readyz and /health, and the
run metrics in Prometheus format on /metrics.`,
	Example: `  kirja daemon                               # All kinds every 24h
  kirja daemon --interval 6h                 # All kinds every 6 hours
  kirja daemon --kinds s3,ec2                # Buckets and instances only
  kirja daemon --listen ""                   # No HTTP endpoints`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 24*time.Hour, "Collection interval")
	daemonCmd.Flags().StringSliceVar(&daemonKinds, "kinds", []string{"lambda", "s3", "ec2"}, "Kinds to collect")
	daemonCmd.Flags().StringVar(&daemonListen, "listen", ":2112", "Health and metrics address (empty disables)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	kinds := make([]inventory.Kind, 0, len(daemonKinds))
	for _, name := range daemonKinds {
		kind, err := inventory.ParseKind(name)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	promExporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	a, err := app.New(ctx, cfg, app.WithTelemetry(telemetry.WithMetricReader(promExporter)))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	metrics, err := daemon.NewMetrics(a.Meter())
	if err != nil {
		return fmt.Errorf("create daemon metrics: %w", err)
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval: daemonInterval,
		Kinds:    kinds,
		Runner:   a,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	log.Info().
		Dur("interval", daemonInterval).
		Strs("kinds", daemonKinds).
		Str("listen", daemonListen).
		Msg("kirja daemon starting")

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(ctx)
		}, func(error) {
			cancel()
		})
	}
	if daemonListen != "" {
		srv := &http.Server{
			Addr:              daemonListen,
			Handler:           d.Handler(promhttp.Handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Add(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Run(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	health := d.Health()
	log.Info().Int64("runs", health.Runs).Int64("failures", health.Failures).Msg("kirja daemon stopped")
	return nil
}
