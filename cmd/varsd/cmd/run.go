package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-drift/reactive/pkg/config"
	"github.com/go-drift/reactive/pkg/engine"
	"github.com/go-drift/reactive/pkg/errors"
	"github.com/go-drift/reactive/pkg/vars"
)

var (
	runConfigPath string
	runDBPath     string
	runDemo       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine until interrupted",
	Long: `Run the variable engine until SIGINT or SIGTERM.

Settings are read from the config file and reloaded when it changes:

  tick_rate     maximum ticks per second (default 60)
  metrics_addr  address of the Prometheus /metrics endpoint (default :9464)
  trace         record tick samples (default false)
  debug_port    port of the HTTP debug server, 0 to disable (default 0)
  easing        curve used by the demo animation (default ease-in-out)

Examples:
  varsd run --config vars.yaml
  varsd run --config vars.yaml --db state.db --demo -v`,
	Args: cobra.NoArgs,
	RunE: runRunCommand,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "vars.yaml", "settings file")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "bolt database for persisted variables")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "run the counter/animation demo")
	rootCmd.AddCommand(runCmd)
}

// settings are the process settings bound to the config file.
type settings struct {
	store       *config.Store
	tickRate    vars.Var[float64]
	metricsAddr vars.Var[string]
	trace       vars.Var[bool]
	debugPort   vars.Var[int]
	easing      vars.Var[string]
}

func loadSettings(path string, logger *slog.Logger) (*settings, error) {
	src, err := config.OpenFile(path, config.WithFileLogger(logger))
	if err != nil {
		return nil, err
	}
	store, err := config.New(src, config.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	s := &settings{store: store}
	if err := s.bind(); err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

func (s *settings) bind() (err error) {
	store := s.store
	if s.tickRate, err = config.Bind(store, "tick_rate", engine.DefaultTickRate); err != nil {
		return err
	}
	if s.metricsAddr, err = config.Bind(store, "metrics_addr", ":9464"); err != nil {
		return err
	}
	if s.trace, err = config.Bind(store, "trace", false); err != nil {
		return err
	}
	if s.debugPort, err = config.Bind(store, "debug_port", 0); err != nil {
		return err
	}
	if s.easing, err = config.Bind(store, "easing", "ease-in-out"); err != nil {
		return err
	}
	return nil
}

// diagnostics merges the settings that configure engine diagnostics.
func (s *settings) diagnostics() vars.Var[engine.DiagnosticsConfig] {
	return vars.Merge2(s.trace, s.debugPort, func(trace bool, port int) engine.DiagnosticsConfig {
		cfg := *engine.DefaultDiagnosticsConfig()
		cfg.TraceTicks = trace
		cfg.DebugServerPort = port
		return cfg
	})
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)
	prevHandler := errors.SetHandler(&errors.LogHandler{Logger: logger, Verbose: verbose})
	defer errors.SetHandler(prevHandler)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings(runConfigPath, logger)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	defer s.store.Close()

	metricsHandler, shutdownMetrics, err := setupMetrics()
	if err != nil {
		return err
	}
	defer shutdownMetrics(context.Background())

	statusHook := s.store.Status().Hook(func(st config.Status) bool {
		if st.Err != nil {
			logger.Warn("settings error", "error", st.Err)
		} else {
			logger.Info("settings loaded", "keys", st.Keys, "loads", st.Loads)
		}
		return true
	})
	defer statusHook.Unhook()

	addrHook := s.metricsAddr.Hook(func(addr string) bool {
		logger.Warn("metrics_addr changed, restart to apply", "addr", addr)
		return true
	})
	defer addrHook.Unhook()

	// SetDiagnostics must not run inside a tick, so hook values are handed
	// to a goroutine. Only the latest configuration matters.
	diagCh := make(chan engine.DiagnosticsConfig, 1)
	diag := s.diagnostics()
	engine.SetDiagnostics(ptr(diag.Get()))
	diagHook := diag.Hook(func(cfg engine.DiagnosticsConfig) bool {
		select {
		case <-diagCh:
		default:
		}
		diagCh <- cfg
		return true
	})
	defer diagHook.Unhook()
	defer engine.SetDiagnostics(nil)

	var demoCount vars.Var[int]
	if runDemo {
		counter, closeCounter, err := demoCounter(runDBPath, logger)
		if err != nil {
			return err
		}
		defer closeCounter()
		demoCount = counter
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx, engine.Options{TickRate: s.tickRate, Logger: logger})
	})

	g.Go(func() error {
		return s.store.Watch(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg := <-diagCh:
				engine.SetDiagnostics(&cfg)
				logger.Info("diagnostics updated", "trace", cfg.TraceTicks, "debug_port", cfg.DebugServerPort)
			}
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	srv := &http.Server{
		Addr:              s.metricsAddr.Get(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if demoCount != nil {
		g.Go(func() error {
			return runDemoLoop(gctx, demoCount, s.easing, logger)
		})
	}

	logger.Info("engine running", "config", runConfigPath, "tick_rate", s.tickRate.Get())
	err = g.Wait()
	// diag is only observed through hooks, which hold it weakly.
	runtime.KeepAlive(diag)
	logger.Info("engine stopped", "ticks", engine.Ticks())
	return err
}

func ptr[T any](v T) *T { return &v }
