package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postkeeper/internal/config"
	"postkeeper/internal/server"
	"postkeeper/internal/store"
	"postkeeper/internal/validate"
	"postkeeper/internal/worker"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	cfg    *config.Config

	driver     string
	redisAddr  string
	badgerPath string
	mongoURI   string
)

var rootCmd = &cobra.Command{
	Use:   "postkeeper",
	Short: "postkeeper - a small HTTP service for blog posts",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("driver") {
			cfg.StoreDriver = driver
		}
		if flags.Changed("redis") {
			cfg.RedisAddr = redisAddr
		}
		if flags.Changed("badger") {
			cfg.BadgerPath = badgerPath
		}
		if flags.Changed("mongo") {
			cfg.MongoURI = mongoURI
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if cfg.IsProduction() {
			logger, err = zap.NewProduction()
		} else {
			logger, err = zap.NewDevelopment()
		}
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		st, hybrid, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		if hybrid != nil {
			// Indexes must be whole before the first request.
			w := worker.NewWorker(hybrid, logger, cfg.GCInterval)
			if _, err := w.Reindex(ctx); err != nil {
				logger.Error("Reindex failed", zap.Error(err))
			}
			go w.Start(ctx)
		}

		srv := server.NewServer(st, logger, cfg.AllowedOrigins)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cfg.Port)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("Server stopped", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Shutting down...")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", zap.Error(err))
			}
		}
		logger.Info("Goodbye!")
	},
}

var (
	addTitle    string
	addContent  string
	addCategory string
	addTags     []string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a post directly in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := validate.NewPostRequest(addTitle, addContent, addCategory, addTags)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, _, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		post := req.Post()
		if err := st.Insert(ctx, &post); err != nil {
			return fmt.Errorf("save post: %w", err)
		}

		logger.Info("Post created", zap.String("id", post.ID))
		return printJSON(cmd, post)
	},
}

var listTerm string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print posts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, _, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		posts, err := st.Find(ctx, store.Filter{Term: listTerm})
		if err != nil {
			return err
		}
		return printJSON(cmd, posts)
	},
}

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert generated posts for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, _, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		faker := gofakeit.New(0)
		for i := 0; i < seedCount; i++ {
			post := fakePost(faker)
			if err := st.Insert(ctx, &post); err != nil {
				return fmt.Errorf("seed post %d: %w", i, err)
			}
		}
		logger.Info("Seeded posts", zap.Int("count", seedCount))
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Redis indexes from Badger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StoreDriver != config.DriverHybrid {
			return fmt.Errorf("reindex only applies to the %s store", config.DriverHybrid)
		}

		ctx := cmd.Context()
		st, hybrid, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		_, err = worker.NewWorker(hybrid, logger, cfg.GCInterval).Reindex(ctx)
		return err
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&driver, "driver", config.DriverHybrid, "Store backend: hybrid or mongo")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB data directory (empty keeps data in memory)")
	rootCmd.PersistentFlags().StringVar(&mongoURI, "mongo", "mongodb://localhost:27017", "MongoDB connection string")

	addCmd.Flags().StringVar(&addTitle, "title", "", "Post title")
	addCmd.Flags().StringVar(&addContent, "content", "", "Post content")
	addCmd.Flags().StringVar(&addCategory, "category", "", "Post category")
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "Tag (repeatable)")

	listCmd.Flags().StringVar(&listTerm, "term", "", "Case-insensitive substring to match")
	seedCmd.Flags().IntVar(&seedCount, "count", 20, "Number of posts to generate")

	rootCmd.AddCommand(serveCmd, addCmd, listCmd, seedCmd, reindexCmd)

	err := rootCmd.ExecuteContext(context.Background())
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
