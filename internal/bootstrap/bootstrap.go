package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	gcpkms "cloud.google.com/go/kms/apiv1"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/GregMSThompson/finance-workers/internal/blob"
	"github.com/GregMSThompson/finance-workers/internal/client/gcal"
	geminiclient "github.com/GregMSThompson/finance-workers/internal/client/gemini"
	plaidclient "github.com/GregMSThompson/finance-workers/internal/client/plaid"
	vertexclient "github.com/GregMSThompson/finance-workers/internal/client/vertex"
	"github.com/GregMSThompson/finance-workers/internal/config"
	"github.com/GregMSThompson/finance-workers/internal/crypto"
	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/store"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

type Generator interface {
	GenerateContent(ctx context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error)
}

type TokenOpener interface {
	OpenToken(ctx context.Context, token string) (string, error)
}

type TokenSecrets interface {
	GetPlaidToken(ctx context.Context, uid, itemID string) (string, error)
}

type Bootstrap struct {
	Log *slog.Logger

	Redis    *redis.Client
	RedisOpt asynq.RedisConnOpt

	Firestore *firestore.Client
	Postgres  *pgxpool.Pool
	Stores    store.Stores

	Tokens  TokenOpener  // nil without KMS_KEY_NAME
	Secrets TokenSecrets // nil without PROJECT_ID

	Plaid             *plaidclient.Adapter
	AI                Generator // nil when neither Gemini nor Vertex is configured
	Calendar          *gcal.Factory
	CSVStorage        *blob.Router
	AttachmentStorage *blob.Router

	closers []func() error
}

func Run(cfg *config.Config) (*Bootstrap, error) {
	applicationCtx := context.Background()
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.LogLevel, logger.NewCloudRunHandler)

	if err := bs.initRedis(cfg); err != nil {
		return bs, err
	}
	if err := bs.initStores(applicationCtx, cfg); err != nil {
		return bs, err
	}
	if err := bs.initSecrets(applicationCtx, cfg); err != nil {
		return bs, err
	}
	if err := bs.initAI(applicationCtx, cfg); err != nil {
		return bs, err
	}
	bs.initStorage(applicationCtx, cfg)

	bs.Plaid = plaidclient.NewAdapter(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnvironment, cfg.PlaidRateLimit)
	bs.Calendar = gcal.NewFactory(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)

	return bs, nil
}

func (bs *Bootstrap) onClose(fn func() error) {
	bs.closers = append(bs.closers, fn)
}

// Close releases clients in reverse order of creation.
func (bs *Bootstrap) Close() error {
	var errList []error
	for i := len(bs.closers) - 1; i >= 0; i-- {
		if err := bs.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	bs.closers = nil
	return errors.Join(errList...)
}

func (bs *Bootstrap) initRedis(cfg *config.Config) error {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	bs.Redis = redis.NewClient(opt)
	bs.onClose(bs.Redis.Close)

	bs.RedisOpt, err = asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL for queues: %w", err)
	}
	return nil
}

func (bs *Bootstrap) initSecrets(ctx context.Context, cfg *config.Config) error {
	if cfg.KMSKeyName != "" {
		client, err := gcpkms.NewKeyManagementClient(ctx)
		if err != nil {
			return fmt.Errorf("create kms client: %w", err)
		}
		bs.onClose(client.Close)
		bs.Tokens = crypto.NewKMS(client, cfg.KMSKeyName)
	}

	if cfg.ProjectID != "" {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create secret manager client: %w", err)
		}
		bs.onClose(client.Close)
		bs.Secrets = store.NewPlaidSecretsStore(client, cfg.ProjectID)
	}
	return nil
}

// initAI prefers the Gemini API when an API key is set.
func (bs *Bootstrap) initAI(ctx context.Context, cfg *config.Config) error {
	switch {
	case cfg.GoogleAPIKey != "":
		adapter, err := geminiclient.NewAdapter(ctx, cfg.GoogleAPIKey, cfg.VertexModel)
		if err != nil {
			return err
		}
		bs.AI = adapter
	case cfg.ProjectID != "":
		adapter, err := vertexclient.NewAdapter(ctx, bs.Log, cfg.ProjectID, cfg.Region, cfg.VertexModel)
		if err != nil {
			return fmt.Errorf("create vertex client: %w", err)
		}
		bs.onClose(adapter.Close)
		bs.AI = adapter
	default:
		bs.Log.Warn("no generative model configured, smart input is unavailable")
	}
	return nil
}

// initStorage routes plain keys to Supabase when it is configured, else to
// the configured GCS bucket. A missing GCS client only disables gs:// paths.
func (bs *Bootstrap) initStorage(ctx context.Context, cfg *config.Config) {
	var gcs *storage.Client
	client, err := storage.NewClient(ctx)
	if err != nil {
		bs.Log.Warn("gcs unavailable", "error", err)
	} else {
		gcs = client
		bs.onClose(client.Close)
	}

	bs.CSVStorage = bs.router(cfg, gcs, cfg.CSVBucket)
	bs.AttachmentStorage = bs.router(cfg, gcs, cfg.AttachmentBucket)
}

func (bs *Bootstrap) router(cfg *config.Config, gcs *storage.Client, bucket string) *blob.Router {
	r := &blob.Router{}
	if gcs != nil {
		r.GCS = blob.NewGCSStore(gcs, "")
		r.Default = blob.NewGCSStore(gcs, bucket)
	}
	if cfg.SupabaseURL != "" {
		r.Default = blob.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, bucket)
	}
	return r
}
