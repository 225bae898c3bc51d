package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxline/crm-digest/internal/server"
	"github.com/fluxline/crm-digest/pkg/client"
	"github.com/fluxline/crm-digest/pkg/digest"
	"github.com/fluxline/crm-digest/pkg/logging"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "digest-server",
		Short:         "CRM activity digest server",
		Long:          "digest-server aggregates overdue activities, activities due today, and deals without a next action from a CRM account into a single digest, served over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "digest-server", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the digest HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// loadConfig reads configuration from the environment.
func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("base_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("stage_cache_ttl", "5m")
	v.SetDefault("request_timeout", "60s")

	_ = v.BindEnv("api_token", "CRM_API_TOKEN")
	_ = v.BindEnv("base_url", "CRM_BASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("log_pretty", "LOG_PRETTY")
	_ = v.BindEnv("stage_cache_ttl", "STAGE_CACHE_TTL")
	_ = v.BindEnv("request_timeout", "REQUEST_TIMEOUT")

	return v
}

// loggingConfig builds the logger configuration from the environment.
func loggingConfig(v *viper.Viper) logging.Config {
	return logging.Config{
		Level:  logging.Level(v.GetString("log_level")),
		Pretty: v.GetBool("log_pretty"),
	}
}

func runServe(ctx context.Context) error {
	v := loadConfig()

	logger := logging.Setup(loggingConfig(v))

	apiToken := v.GetString("api_token")
	if apiToken == "" {
		return fmt.Errorf("CRM_API_TOKEN is required")
	}

	// Redis is optional; without it rate-limit state and the metadata
	// cache stay process-local.
	var redisClient *redis.Client
	if redisURL := v.GetString("redis_url"); redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to Redis at %s: %w", redisURL, err)
		}
		logger.Info().Str("addr", redisURL).Msg("Connected to Redis")
	}

	clientCfg := client.DefaultConfig(apiToken)
	clientCfg.Redis = redisClient
	if baseURL := v.GetString("base_url"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	crm, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create CRM client: %w", err)
	}

	pipeline := digest.NewPipeline(crm, digest.Config{
		StageCacheTTL: v.GetDuration("stage_cache_ttl"),
	})

	srv, err := server.New(server.Config{
		Addr:           ":" + v.GetString("port"),
		RequestTimeout: v.GetDuration("request_timeout"),
	}, pipeline, crm)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
