package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/agrisense/plugin/ai/timeout"
	"github.com/hrygo/agrisense/plugin/cache"
	v1 "github.com/hrygo/agrisense/server/router/api/v1"
)

// limiterIdle is how long a client's rate limiter survives without traffic.
const limiterIdle = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		routerService, err := newRouter(p)
		if err != nil {
			return err
		}

		cacheConfig := cache.DefaultServiceConfig()
		cacheConfig.Capacity = p.CacheCapacity
		cacheService := cache.NewService(cacheConfig)
		defer cacheService.Close()

		assistantService, err := newAssistant(ctx, p, routerService, cacheService)
		if err != nil {
			return err
		}

		api := v1.NewAPIV1Service(p, assistantService, routerService, routerService.Lexicon())
		api.Cache = cacheService

		e := echo.New()
		api.RegisterRoutes(e)

		addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("agrisense started", "addr", addr, "mode", p.Mode, "version", p.Version, "strict_gate", p.StrictGate)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "server stopped")
			}
			return nil
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := api.RateLimiter.Cleanup(limiterIdle); n > 0 {
						slog.Debug("rate limiters evicted", "count", n)
					}
				}
			}
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout.ShutdownTimeout)
			defer cancel()
			slog.Info("agrisense shutting down")
			return e.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "address of server")
	serveCmd.Flags().Int("port", 8080, "port of server")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
