package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"videoscribe/internal/database"
	"videoscribe/internal/handlers"
	"videoscribe/internal/middleware"
	"videoscribe/internal/repository"
	"videoscribe/internal/router"
	"videoscribe/internal/websocket"
	"videoscribe/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job API: queue batch runs over HTTP and stream progress over websocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServe(); err != nil {
			return usageError{err}
		}
		ctx := cmd.Context()

		store, closeStore, err := repository.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("job store: %w", err)
		}
		defer closeStore()
		slog.Info("job store ready", slog.Bool("postgres", database.IsPostgresURL(cfg.DatabaseURL)))

		redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL, cfg.ServeWorkers)
		if err != nil {
			return err
		}
		defer redisClients.Close()

		proc, cleanup, err := newProcessor(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		queue := worker.NewQueue(redisClients.Queue)
		workerPool := worker.NewPool(redisClients.Queue, queue, store, proc, pipelineOptions(cfg, nil), cfg.ServeWorkers)
		workerPool.Start()

		jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
		wsHub := websocket.NewHub(websocket.RedisSubscriber{Client: redisClients.PubSub}, jwtAuth)
		r := router.New(jwtAuth, handlers.NewJobHandler(store, queue), wsHub)

		server := &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			slog.Info("shutting down")
			workerPool.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()

		slog.Info("videoscribe ready",
			slog.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
			slog.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)),
			slog.String("output", cfg.OutputRoot))

		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
