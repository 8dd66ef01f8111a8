package cli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorakshaai/goraksha/pkg/diagnosis"
	"github.com/gorakshaai/goraksha/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 60
	serverMaxHeaderBytes      = 20
)

var (
	//go:embed templates/*
	embedFS embed.FS

	addressFlag = &urfave.StringFlag{
		Name:  "address",
		Usage: "Address on which the server will listen (defaults to config address)",
	}

	tokenFlag = &urfave.StringFlag{
		Name:  "token",
		Usage: "Bearer token required on the prediction API; the home page form asks for it (optional)",
	}

	logFileFlag = &urfave.StringFlag{
		Name:  "log-file",
		Usage: "File receiving JSON server logs (optional)",
	}

	ephemeralFlag = &urfave.BoolFlag{
		Name:  "ephemeral",
		Usage: "Do not persist predictions",
	}

	serverCmd = &urfave.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start HTTP server",
		Action:  cmdStartServer,
		Flags: []urfave.Flag{
			addressFlag,
			tokenFlag,
			logFileFlag,
			ephemeralFlag,
		},
	}
)

// routerDeps are the collaborators of the HTTP layer. Store is optional:
// a nil store disables persistence and the history API. An empty token
// leaves the API open.
type routerDeps struct {
	scorer *diagnosis.Scorer
	store  PredictionStore
	token  string
	logger *slog.Logger
}

func cmdStartServer(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := getConfig(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.IsSet(addressFlag.Name) {
		cfg.Address = cmd.String(addressFlag.Name)
	}
	if cmd.IsSet(tokenFlag.Name) {
		cfg.APIToken = cmd.String(tokenFlag.Name)
	}
	if cmd.IsSet(logFileFlag.Name) {
		cfg.LogFile = cmd.String(logFileFlag.Name)
	}

	logger, closeLog := logging.NewServerLogger(cfg.LogLevel, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)

	deps := routerDeps{
		scorer: diagnosis.NewScorer(nil),
		token:  cfg.APIToken,
		logger: logger,
	}

	if !cmd.Bool(ephemeralFlag.Name) {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.store = store
	}

	s := &http.Server{
		Addr:           cfg.Address,
		Handler:        makeRouter(deps),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServer(ctx, s, logger)
}

// runServer serves until ctx is done, then shuts s down gracefully.
func runServer(ctx context.Context, s *http.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "address", fmt.Sprintf("http://%s", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func makeRouter(deps routerDeps) http.Handler {
	tmpl := template.Must(template.New("").ParseFS(embedFS, "templates/*.html"))
	if deps.scorer == nil {
		deps.scorer = diagnosis.NewScorer(nil)
	}
	if deps.logger == nil {
		deps.logger = slog.Default()
	}

	gate := tokenGate(deps.token, writeError)
	predictGate := tokenGate(deps.token, writePredictError)
	mux := http.NewServeMux()

	// Views
	mux.HandleFunc("GET /{$}", homeViewHandler(tmpl, deps.scorer.Table(), deps.token != ""))
	mux.HandleFunc("GET /health", healthHandler)

	// Prediction API
	mux.Handle("POST /predict_disease", predictGate(predictAPIHandler(deps.scorer, deps.store)))
	mux.Handle("GET /api/species", gate(speciesAPIHandler(deps.scorer.Table())))
	mux.Handle("GET /api/predictions", gate(predictionListAPIHandler(deps.store)))
	mux.Handle("GET /api/predictions/summary", gate(predictionSummaryAPIHandler(deps.store)))
	mux.Handle("GET /api/predictions/{id}", gate(predictionAPIHandler(deps.store)))

	return requestLogger(deps.logger, mux)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
