package redis

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/redis"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

type Queue struct {
	Instance *redis.Instance
	URL      pulumi.StringOutput
}

// SetupRedis creates the Memorystore instance backing the job queues.
func SetupRedis(ctx *pulumi.Context, prov *gcp.Provider) (*Queue, error) {
	gcpCfg := config.New(ctx, "gcp")
	redisCfg := config.New(ctx, "redis")
	region := gcpCfg.Require("region")

	tier := redisCfg.Get("tier")
	if tier == "" {
		tier = "BASIC"
	}
	memory := redisCfg.GetInt("memorySizeGb")
	if memory == 0 {
		memory = 1
	}

	svc, err := projects.NewService(ctx, "redisService", &projects.ServiceArgs{
		Service: pulumi.String("redis.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	inst, err := redis.NewInstance(ctx, "queueRedis", &redis.InstanceArgs{
		Name:         pulumi.String("finance-workers"),
		Region:       pulumi.String(region),
		Tier:         pulumi.String(tier),
		MemorySizeGb: pulumi.Int(memory),
		RedisVersion: pulumi.String("REDIS_7_2"),
	},
		pulumi.Provider(prov),
		pulumi.DependsOn([]pulumi.Resource{svc}),
	)
	if err != nil {
		return nil, err
	}

	return &Queue{
		Instance: inst,
		URL:      pulumi.Sprintf("redis://%s:%d", inst.Host, inst.Port),
	}, nil
}
