// Command enqueue pushes jobs onto the worker queues. It is meant for
// operators and local testing; the web app enqueues through its own producer.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	gcpkms "cloud.google.com/go/kms/apiv1"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/GregMSThompson/finance-workers/internal/config"
	"github.com/GregMSThompson/finance-workers/internal/crypto"
	"github.com/GregMSThompson/finance-workers/internal/queue"
)

var (
	cfg      *config.Config
	maxRetry int
	timeout  time.Duration
	taskID   string
)

var rootCmd = &cobra.Command{
	Use:          "enqueue",
	Short:        "Enqueue finance worker jobs",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.New()
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&maxRetry, "max-retry", 3, "Retries before the job is marked failed")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-attempt timeout (0 uses the queue default)")
	rootCmd.PersistentFlags().StringVar(&taskID, "task-id", "", "Explicit task id, rejected if it already exists")

	rootCmd.AddCommand(plaidSyncCmd, importCmd, calendarSyncCmd, smartInputCmd, progressCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, queueName, taskType string, data any) error {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	producer := queue.NewProducer(redisOpt)
	defer producer.Close()

	id, err := producer.Enqueue(ctx, queueName, taskType, data, queue.EnqueueOptions{
		MaxRetry: &maxRetry,
		Timeout:  timeout,
		TaskID:   taskID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %s on %s: %s\n", taskType, queueName, id)
	return nil
}

// sealToken encrypts token with the configured KMS key.
func sealToken(ctx context.Context, token string) (string, error) {
	if cfg.KMSKeyName == "" {
		return "", fmt.Errorf("--seal needs KMS_KEY_NAME")
	}
	client, err := gcpkms.NewKeyManagementClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create kms client: %w", err)
	}
	defer client.Close()
	return crypto.NewKMS(client, cfg.KMSKeyName).SealToken(ctx, token)
}

func newRedis() (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}
