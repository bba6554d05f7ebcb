package storage

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/storage"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

type Buckets struct {
	CSV         *storage.Bucket
	Attachments *storage.Bucket
}

// SetupBuckets creates the CSV upload bucket and the smart input
// attachment bucket. Uploaded CSVs expire after a week.
func SetupBuckets(ctx *pulumi.Context, prov *gcp.Provider) (*Buckets, error) {
	gcpCfg := config.New(ctx, "gcp")
	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")

	csv, err := storage.NewBucket(ctx, "csvImports", &storage.BucketArgs{
		Name:                     pulumi.String(projectID + "-csv-imports"),
		Location:                 pulumi.String(region),
		UniformBucketLevelAccess: pulumi.Bool(true),
		LifecycleRules: storage.BucketLifecycleRuleArray{
			&storage.BucketLifecycleRuleArgs{
				Action: &storage.BucketLifecycleRuleActionArgs{
					Type: pulumi.String("Delete"),
				},
				Condition: &storage.BucketLifecycleRuleConditionArgs{
					Age: pulumi.Int(7),
				},
			},
		},
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	attachments, err := storage.NewBucket(ctx, "smartInputAttachments", &storage.BucketArgs{
		Name:                     pulumi.String(projectID + "-smart-input-attachments"),
		Location:                 pulumi.String(region),
		UniformBucketLevelAccess: pulumi.Bool(true),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	return &Buckets{CSV: csv, Attachments: attachments}, nil
}
