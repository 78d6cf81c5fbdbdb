package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retell-relay/internal/relay"
)

var (
	servePort   int
	serveNoWarm bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Retell webhook server",
	Long:  "Receives Retell call-analysis webhooks on POST /retell-webhook and creates Salesforce leads.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRelay(ctx, cfg, relayOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Server.WarmUp && !serveNoWarm {
			if err := relay.WarmUp(ctx, env.Sessions, env.Retry); err != nil {
				// Webhooks authenticate lazily, so a failed warm-up is not fatal.
				zap.L().Warn("initial salesforce authentication failed", zap.Error(err))
			} else {
				zap.L().Info("salesforce authenticated", zap.String("instance_url", env.Sessions.Current().InstanceURL))
			}
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildMux(env.Service, serverOptions{Timeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second, CORSOrigins: cfg.Server.CORSOrigins}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return runServer(ctx, srv)
	},
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

// serverOptions configures the HTTP middleware stack.
type serverOptions struct {
	Timeout     time.Duration
	CORSOrigins []string
}

// buildMux wires the webhook and diagnostic routes. svc may be nil, in which
// case only the health and banner routes respond successfully.
func buildMux(svc relayService, opts serverOptions) http.Handler {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	h := &handlers{svc: svc, now: time.Now}
	r.Get("/", h.banner)
	r.Get("/health", h.health)
	r.Post("/retell-webhook", h.webhook)
	r.Get("/test-sf-connection", h.testConnection)
	r.Get("/check-available-fields", h.availableFields)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found"})
	})
	return r
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWarm, "no-warm-up", false, "skip authenticating with Salesforce at startup")
	rootCmd.AddCommand(serveCmd)
}
