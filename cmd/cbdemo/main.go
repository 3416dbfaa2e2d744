// Command cbdemo is a small CLI that exercises the breaker engine against
// either the in-memory store or Redis, following the cmd/nova
// cobra-root-with-subcommands layout (persistent flags for the Redis
// connection, one subcommand per operation).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oriys/distcb/breaker"
	"github.com/oriys/distcb/breaker/memstore"
	"github.com/oriys/distcb/breaker/redisstore"
	"github.com/oriys/distcb/internal/config"
	"github.com/oriys/distcb/internal/logging"
	"github.com/oriys/distcb/internal/metrics"
	"github.com/oriys/distcb/internal/telemetry"
)

var (
	redisAddr  string
	redisPass  string
	redisDB    int
	useMemory  bool
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cbdemo",
		Short: "cbdemo - distributed circuit breaker demo CLI",
		Long:  "Drives the distributed circuit breaker engine against Redis or an in-memory store",
	}

	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Redis address")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Redis database")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "use the in-memory store instead of Redis")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (optional, flags override)")

	rootCmd.AddCommand(statusCmd(), simulateCmd(), serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig returns a *config.Config from --config, or DefaultConfig if
// unset.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadYAML(configFile)
}

func getStore(cfg *config.Config) (breaker.Store, func() error, error) {
	if useMemory {
		return memstore.New(nil), func() error { return nil }, nil
	}
	rs := redisstore.New(redisstore.Config{
		Addr:      redisAddr,
		Password:  redisPass,
		DB:        redisDB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err := rs.Ping(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return rs, rs.Close, nil
}

func buildEngine(cfg *config.Config, m *metrics.Metrics, component string) (*breaker.Engine, func() error, error) {
	store, closeStore, err := getStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	sink := telemetry.NewSink(m)
	eng, err := breaker.New(cfg.Breaker.Options(), store, breaker.SystemClock{}, logging.Component(component), sink)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	closer := func() error {
		eng.Close()
		return closeStore()
	}
	return eng, closer, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the current breaker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m := metrics.New(cfg.Observability.Metrics.Namespace)
			eng, closer, err := buildEngine(cfg, m, "cbdemo.status")
			if err != nil {
				return err
			}
			defer closer()
			// One Decide reconciles the fresh engine's local state with the
			// store latch before it is printed.
			if _, err := eng.Decide(cmd.Context(), "primary", "secondary"); err != nil {
				return err
			}
			fmt.Printf("breaker %q: %s\n", cfg.Breaker.Key, eng.State())
			return nil
		},
	}
}

func simulateCmd() *cobra.Command {
	var (
		calls      int
		failRate   float64
		primary    string
		secondary  string
		intervalMs int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "drive Decide/Report in a loop, printing each decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.SetLevelFromString(cfg.Observability.Logging.Level)
			m := metrics.New(cfg.Observability.Metrics.Namespace)
			eng, closer, err := buildEngine(cfg, m, "cbdemo.simulate")
			if err != nil {
				return err
			}
			defer closer()

			ctx := cmd.Context()
			keyLog := logging.ForKey(cfg.Breaker.Key)
			lastState := eng.State()
			for i := 0; i < calls; i++ {
				requestID := uuid.New().String()
				choice, err := eng.Decide(ctx, primary, secondary)
				if err != nil {
					return fmt.Errorf("decide: %w", err)
				}
				success := simulatedOutcome(failRate)
				if err := eng.Report(ctx, success, choice.UseProbe); err != nil {
					keyLog.Warn("report failed", "err", err, "request_id", requestID)
				}
				state := eng.State()
				if state != lastState {
					m.RecordTrip(cfg.Breaker.Key, state.String())
					lastState = state
				}
				m.SetState(cfg.Breaker.Key, int(state))
				fmt.Printf("[%3d] endpoint=%-9s probe=%-5t weight=%-3d success=%-5t state=%s\n",
					i, choice.Endpoint, choice.UseProbe, choice.PrimaryWeightPercent, success, state)
				if intervalMs > 0 {
					time.Sleep(time.Duration(intervalMs) * time.Millisecond)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&calls, "calls", 50, "number of Decide/Report cycles to run")
	cmd.Flags().Float64Var(&failRate, "fail-rate", 0.0, "probability [0,1] that a call fails")
	cmd.Flags().StringVar(&primary, "primary", "http://primary.local", "primary endpoint label")
	cmd.Flags().StringVar(&secondary, "secondary", "http://secondary.local", "secondary endpoint label")
	cmd.Flags().IntVar(&intervalMs, "interval-ms", 0, "sleep between cycles, in milliseconds")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "serve Prometheus metrics for a breaker over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := telemetry.Init(cmd.Context(), telemetry.Config{
				Enabled:    cfg.Observability.Tracing.Enabled,
				Exporter:   cfg.Observability.Tracing.Exporter,
				Endpoint:   cfg.Observability.Tracing.Endpoint,
				SampleRate: cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return err
			}
			defer telemetry.Shutdown(context.Background())

			m := metrics.New(cfg.Observability.Metrics.Namespace)
			mux := newMux(m)

			srv := &http.Server{Addr: addr, Handler: mux}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logging.Component("cbdemo.serve-metrics").Info("serving metrics", slog.String("addr", addr))

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9464", "address to serve /metrics on")
	return cmd
}

func simulatedOutcome(failRate float64) bool {
	if failRate <= 0 {
		return true
	}
	return rand.Float64() >= failRate
}

func newMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
