package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/finance-workers/infra/cloudrun"
	"github.com/GregMSThompson/finance-workers/infra/docker"
	"github.com/GregMSThompson/finance-workers/infra/firestore"
	"github.com/GregMSThompson/finance-workers/infra/kms"
	"github.com/GregMSThompson/finance-workers/infra/provider"
	"github.com/GregMSThompson/finance-workers/infra/redis"
	"github.com/GregMSThompson/finance-workers/infra/storage"
	"github.com/GregMSThompson/finance-workers/infra/vertex"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		// set default provider with the correct project
		prov, err := provider.SetupDefaultProvider(ctx)
		if err != nil {
			return err
		}

		if err := firestore.SetupFirestore(ctx, prov); err != nil {
			return err
		}

		if err := vertex.SetupVertex(ctx, prov); err != nil {
			return err
		}

		queue, err := redis.SetupRedis(ctx, prov)
		if err != nil {
			return err
		}

		buckets, err := storage.SetupBuckets(ctx, prov)
		if err != nil {
			return err
		}

		keyID, err := kms.SetupTokenKey(ctx, prov)
		if err != nil {
			return err
		}

		repo, err := docker.CreateCloudrunRepo(ctx)
		if err != nil {
			return err
		}

		return cloudrun.SetupWorkers(ctx, prov, cloudrun.WorkerDeps{
			RedisURL:    queue.URL,
			KMSKeyID:    keyID,
			CSVBucket:   buckets.CSV,
			Attachments: buckets.Attachments,
		}, repo)
	})
}
