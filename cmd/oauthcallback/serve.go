package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/oauthcallback/internal/app"
	"github.com/dropDatabas3/oauthcallback/internal/config"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
)

func buildApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(withLogger(ctx), cfg, app.Deps{})
}

func newServeCmd(conf func() *config.Config) *cobra.Command {
	var janitorEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), conf(), janitorEvery)
		},
	}
	cmd.Flags().DurationVar(&janitorEvery, "janitor-interval", 5*time.Minute, "frecuencia de purga de outer requests vencidos (0 desactiva)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, janitorEvery time.Duration) error {
	ctx, stop := signal.NotifyContext(withLogger(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.L()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", logger.Err(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", logger.String("addr", srv.Addr), logger.String("public_url", cfg.Server.PublicURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if janitorEvery > 0 {
		g.Go(func() error {
			janitor(gctx, a, janitorEvery)
			return nil
		})
	}
	return g.Wait()
}

// janitor purga outer requests vencidos cada every hasta que ctx termine.
func janitor(ctx context.Context, a *app.App, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.PurgeExpired(ctx, 0)
			if err != nil {
				logger.L().Warn("purge expired failed", logger.Err(err))
				continue
			}
			if n > 0 {
				logger.L().Debug("purged expired outer requests", logger.Int("count", int(n)))
			}
		}
	}
}
