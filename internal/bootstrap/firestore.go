package bootstrap

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/finance-workers/internal/config"
	"github.com/GregMSThompson/finance-workers/internal/store"
	"github.com/GregMSThompson/finance-workers/internal/store/postgres"
)

func InitFirestore(ctx context.Context, projectID string) (*firestore.Client, error) {
	return firestore.NewClient(ctx, projectID)
}

// initStores uses Postgres when DATABASE_URL is set and Firestore otherwise.
func (bs *Bootstrap) initStores(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		bs.onClose(func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		bs.Postgres = pool
		bs.Stores = postgres.NewStores(pool)
		bs.Log.Info("using postgres stores")
		return nil
	}

	client, err := InitFirestore(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("create firestore client: %w", err)
	}
	bs.onClose(client.Close)
	bs.Firestore = client
	bs.Stores = store.NewFirestoreStores(client)
	bs.Log.Info("using firestore stores", "project_id", cfg.ProjectID)
	return nil
}
