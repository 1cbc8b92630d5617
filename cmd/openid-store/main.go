package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/openid-store/internal/config"
	"github.com/alexjbarnes/openid-store/internal/logging"
	"github.com/alexjbarnes/openid-store/internal/maintenance"
	"github.com/alexjbarnes/openid-store/internal/metrics"
	"github.com/alexjbarnes/openid-store/internal/state"
	"github.com/alexjbarnes/openid-store/internal/store"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var Version = "dev"

func main() {
	// Subcommands run before config loading.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hash-secret":
			fmt.Fprint(os.Stderr, "Enter client secret: ")
			hash, err := hashSecret(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(hash)
			return
		case "dump":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: openid-store dump <state-file>")
				os.Exit(2)
			}
			if err := dumpSnapshot(os.Stdout, os.Args[2]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println(Version)
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashSecret reads one line and returns its bcrypt hash, the form client
// secrets are stored in.
func hashSecret(in io.Reader) (string, error) {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return "", errors.New("no input")
	}

	secret := scanner.Text()
	if secret == "" {
		return "", errors.New("empty secret")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// dumpSnapshot prints the snapshot stored at path as YAML.
func dumpSnapshot(w io.Writer, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening state: %w", err)
	}

	st, err := state.LoadAt(path)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	// Round trip through JSON so the output uses the JSON field names and
	// property bags render as nested documents.
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	return enc.Close()
}

// warnVolatile flags a production deployment that keeps records only in
// memory.
func warnVolatile(cfg *config.Config, logger *slog.Logger) bool {
	if !cfg.IsProduction() || cfg.StatePath != "" {
		return false
	}

	logger.Warn("STATE_PATH is not set, records will be lost on restart")

	return true
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("openid-store starting",
		slog.String("version", Version),
		slog.Duration("prune_interval", cfg.PruneInterval),
		slog.Bool("snapshots", cfg.StatePath != ""),
		slog.Bool("metrics", cfg.MetricsAddr != ""),
	)

	warnVolatile(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := store.NewRegistry(store.Options{Logger: logger.With(slog.String("service", "store"))})

	var appState *state.State
	if cfg.StatePath != "" {
		appState, err = state.LoadAt(cfg.StatePath)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
		defer appState.Close()

		if err := restoreSnapshot(ctx, appState, reg, logger); err != nil {
			return err
		}
	}

	collector := metrics.NewCollector(reg)
	runner := newRunner(cfg, reg, collector, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return runMetrics(gctx, cfg.MetricsAddr, collector.Handler(), logger)
		})
	}

	err = g.Wait()

	if appState != nil {
		if saveErr := saveSnapshot(appState, reg, logger); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}

	return err
}

func newRunner(cfg *config.Config, reg *store.Registry, collector *metrics.Collector, logger *slog.Logger) *maintenance.Runner {
	return &maintenance.Runner{
		Interval: cfg.PruneInterval,
		Tasks: []maintenance.Task{
			{Kind: metrics.KindAuthorization, Pruner: reg.AuthorizationStore(), MaxAge: cfg.PruneAuthorizationAge},
			{Kind: metrics.KindToken, Pruner: reg.TokenStore(), MaxAge: cfg.PruneTokenAge},
		},
		Logger:   logger.With(slog.String("service", "maintenance")),
		OnPruned: collector.ObservePruned,
	}
}

func restoreSnapshot(ctx context.Context, appState *state.State, reg *store.Registry, logger *slog.Logger) error {
	snap, err := appState.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	if snap.SavedAt.IsZero() {
		logger.Info("no snapshot found, starting empty")
		return nil
	}

	if err := state.Restore(ctx, reg, snap); err != nil {
		return err
	}

	logger.Info("snapshot restored",
		slog.Time("saved_at", snap.SavedAt),
		slog.Int("applications", len(snap.Applications)),
		slog.Int("authorizations", len(snap.Authorizations)),
		slog.Int("scopes", len(snap.Scopes)),
		slog.Int("tokens", len(snap.Tokens)),
	)

	return nil
}

// saveSnapshot runs after the services stopped, so it uses its own
// context rather than the cancelled one.
func saveSnapshot(appState *state.State, reg *store.Registry, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := state.Capture(ctx, reg)
	if err != nil {
		return fmt.Errorf("capturing snapshot: %w", err)
	}
	snap.SavedAt = time.Now().UTC()

	if err := appState.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	logger.Info("snapshot saved",
		slog.Time("saved_at", snap.SavedAt),
		slog.Int("applications", len(snap.Applications)),
		slog.Int("authorizations", len(snap.Authorizations)),
		slog.Int("scopes", len(snap.Scopes)),
		slog.Int("tokens", len(snap.Tokens)),
	)

	return nil
}

// runMetrics serves the Prometheus endpoint until ctx is cancelled.
func runMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	metricsLogger := logger.With(slog.String("service", "metrics"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsLogger.Info("starting metrics server", slog.String("listen", addr))

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		metricsLogger.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}

	return nil
}
