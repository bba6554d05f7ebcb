package cloudrun

import (
	"fmt"

	"github.com/pulumi/pulumi-docker/sdk/v4/go/docker"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/cloudrun"
	gcpkms "github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/kms"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/storage"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/GregMSThompson/finance-workers/infra/common"
	"github.com/GregMSThompson/finance-workers/infra/secret"
)

const healthPort = 8080

// WorkerDeps are the resources the worker service reads from.
type WorkerDeps struct {
	RedisURL    pulumi.StringOutput
	KMSKeyID    pulumi.StringOutput
	CSVBucket   *storage.Bucket
	Attachments *storage.Bucket
}

type secretRefs struct {
	plaidClientIDName pulumi.StringOutput
	plaidSecretName   pulumi.StringOutput
	googleAPIKeyName  pulumi.StringOutput
	databaseURLName   *pulumi.StringOutput // only with store:backend = postgres
}

// SetupWorkers deploys the worker process as an internal, always-on Cloud
// Run service. The only HTTP traffic it takes is health probes.
func SetupWorkers(ctx *pulumi.Context, prov *gcp.Provider, deps WorkerDeps, res ...pulumi.Resource) error {
	img, err := buildWorkerImage(ctx, res...)
	if err != nil {
		return err
	}

	srv, err := enableCloudRun(ctx, prov)
	if err != nil {
		return err
	}

	workerSA, err := createServiceAccount(ctx, prov, deps)
	if err != nil {
		return err
	}

	smSvc, err := secret.SetupSecretManager(ctx, prov, workerSA)
	if err != nil {
		return err
	}

	sr, err := createSecrets(ctx)
	if err != nil {
		return err
	}

	_, err = createCloudRunService(ctx, img, workerSA, sr, deps, prov, srv, smSvc)
	return err
}

func buildWorkerImage(ctx *pulumi.Context, res ...pulumi.Resource) (*docker.Image, error) {
	gcpCfg := config.New(ctx, "gcp")
	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")

	hash, err := common.GenerateHash("../")
	if err != nil {
		return nil, err
	}

	return docker.NewImage(ctx, "workersImage", &docker.ImageArgs{
		Build: docker.DockerBuildArgs{
			Platform:   pulumi.String("linux/amd64"),
			Context:    pulumi.String(".."),
			Dockerfile: pulumi.String("../cmd/workers/Dockerfile"),
		},
		ImageName: pulumi.String(fmt.Sprintf("%s-docker.pkg.dev/%s/workers/finance-workers:%s", region, projectID, hash)),
	},
		pulumi.DependsOn(res),
	)
}

func enableCloudRun(ctx *pulumi.Context, prov *gcp.Provider) (*projects.Service, error) {
	return projects.NewService(ctx, "cloudRunService", &projects.ServiceArgs{
		Service: pulumi.String("run.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
}

func createServiceAccount(ctx *pulumi.Context, prov *gcp.Provider, deps WorkerDeps) (*serviceaccount.Account, error) {
	gcpCfg := config.New(ctx, "gcp")
	projectID := gcpCfg.Require("project")

	workerSA, err := serviceaccount.NewAccount(ctx, "workerServiceAccount", &serviceaccount.AccountArgs{
		AccountId:   pulumi.String("finance-workers"),
		DisplayName: pulumi.String("Finance Workers Service Account"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	member := workerSA.Email.ApplyT(func(email string) string {
		return fmt.Sprintf("serviceAccount:%s", email)
	}).(pulumi.StringOutput)

	projectRoles := map[string]string{
		"firestoreAccess": "roles/datastore.user",
		"vertexAccess":    "roles/aiplatform.user",
	}
	for name, role := range projectRoles {
		_, err = projects.NewIAMMember(ctx, name, &projects.IAMMemberArgs{
			Role:    pulumi.String(role),
			Member:  member,
			Project: pulumi.String(projectID),
		},
			pulumi.Provider(prov),
		)
		if err != nil {
			return nil, err
		}
	}

	// plaid tokens are sealed and opened with the one key
	_, err = gcpkms.NewCryptoKeyIAMMember(ctx, "plaidTokenKeyAccess", &gcpkms.CryptoKeyIAMMemberArgs{
		CryptoKeyId: deps.KMSKeyID,
		Role:        pulumi.String("roles/cloudkms.cryptoKeyEncrypterDecrypter"),
		Member:      member,
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	buckets := map[string]*storage.Bucket{
		"csvBucketAccess":        deps.CSVBucket,
		"attachmentBucketAccess": deps.Attachments,
	}
	for name, bucket := range buckets {
		_, err = storage.NewBucketIAMMember(ctx, name, &storage.BucketIAMMemberArgs{
			Bucket: bucket.Name,
			Role:   pulumi.String("roles/storage.objectAdmin"),
			Member: member,
		},
			pulumi.Provider(prov),
		)
		if err != nil {
			return nil, err
		}
	}

	return workerSA, nil
}

func createCloudRunService(ctx *pulumi.Context,
	img *docker.Image,
	workerSA *serviceaccount.Account,
	sr *secretRefs,
	deps WorkerDeps,
	prov *gcp.Provider,
	res ...pulumi.Resource) (*cloudrun.Service, error) {
	gcpCfg := config.New(ctx, "gcp")
	crCfg := config.New(ctx, "cloudrun")
	plaidCfg := config.New(ctx, "plaid")
	workerCfg := config.New(ctx, "workers")

	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")
	maxScale := crCfg.Require("maxScale")
	cpu := crCfg.Require("cpu")
	memory := crCfg.Require("memory")
	logLevel := crCfg.Require("logLevel")
	plaidEnv := plaidCfg.Require("environment")

	annotations := pulumi.StringMap{
		// workers pull from redis, so at least one instance must always run
		"autoscaling.knative.dev/minScale": pulumi.String("1"),
		"autoscaling.knative.dev/maxScale": pulumi.String(maxScale),

		"run.googleapis.com/cpu":            pulumi.String(cpu),
		"run.googleapis.com/memory":         pulumi.String(memory),
		"run.googleapis.com/cpu-throttling": pulumi.String("false"),
	}
	// memorystore is only reachable from inside the VPC
	if connector := crCfg.Get("vpcConnector"); connector != "" {
		annotations["run.googleapis.com/vpc-access-connector"] = pulumi.String(connector)
		annotations["run.googleapis.com/vpc-access-egress"] = pulumi.String("private-ranges-only")
	}

	envs := cloudrun.ServiceTemplateSpecContainerEnvArray{
		env("PROJECT_ID", pulumi.String(projectID)),
		env("REGION", pulumi.String(region)),
		env("LOG_LEVEL", pulumi.String(logLevel)),
		env("REDIS_URL", deps.RedisURL),
		env("KMS_KEY_NAME", deps.KMSKeyID),
		env("CSV_BUCKET", deps.CSVBucket.Name),
		env("ATTACHMENT_BUCKET", deps.Attachments.Name),
		env("PLAID_ENV", pulumi.String(plaidEnv)),
		env("HEALTH_ADDR", pulumi.String(fmt.Sprintf(":%d", healthPort))),
		secretEnv("PLAID_CLIENT_ID", sr.plaidClientIDName),
		secretEnv("PLAID_API_KEY", sr.plaidSecretName),
		secretEnv("GOOGLE_API_KEY", sr.googleAPIKeyName),
	}
	if workers := workerCfg.Get("queues"); workers != "" {
		envs = append(envs, env("WORKERS", pulumi.String(workers)))
	}
	if sr.databaseURLName != nil {
		envs = append(envs, secretEnv("DATABASE_URL", *sr.databaseURLName))
	}

	return cloudrun.NewService(ctx, "workersService", &cloudrun.ServiceArgs{
		Location: pulumi.String(region),
		Metadata: &cloudrun.ServiceMetadataArgs{
			Annotations: pulumi.StringMap{
				"run.googleapis.com/ingress": pulumi.String("internal"),
			},
		},

		Template: &cloudrun.ServiceTemplateArgs{
			Metadata: &cloudrun.ServiceTemplateMetadataArgs{
				Annotations: annotations,
			},

			Spec: &cloudrun.ServiceTemplateSpecArgs{
				ServiceAccountName: workerSA.Email,

				Containers: cloudrun.ServiceTemplateSpecContainerArray{
					&cloudrun.ServiceTemplateSpecContainerArgs{
						Image: img.ImageName,
						Ports: cloudrun.ServiceTemplateSpecContainerPortArray{
							&cloudrun.ServiceTemplateSpecContainerPortArgs{
								ContainerPort: pulumi.Int(healthPort),
							},
						},
						Envs: envs,
						StartupProbe: &cloudrun.ServiceTemplateSpecContainerStartupProbeArgs{
							HttpGet: &cloudrun.ServiceTemplateSpecContainerStartupProbeHttpGetArgs{
								Path: pulumi.String("/healthz"),
							},
							PeriodSeconds:    pulumi.Int(5),
							FailureThreshold: pulumi.Int(6),
						},
						LivenessProbe: &cloudrun.ServiceTemplateSpecContainerLivenessProbeArgs{
							HttpGet: &cloudrun.ServiceTemplateSpecContainerLivenessProbeHttpGetArgs{
								Path: pulumi.String("/readyz"),
							},
							PeriodSeconds:    pulumi.Int(30),
							FailureThreshold: pulumi.Int(3),
						},
					},
				},
			},
		},
	},
		pulumi.Provider(prov),
		pulumi.DependsOn(res),
	)
}

func env(name string, value pulumi.StringInput) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name:  pulumi.String(name),
		Value: value,
	}
}

func secretEnv(name string, secretName pulumi.StringOutput) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name: pulumi.String(name),
		ValueFrom: &cloudrun.ServiceTemplateSpecContainerEnvValueFromArgs{
			SecretKeyRef: &cloudrun.ServiceTemplateSpecContainerEnvValueFromSecretKeyRefArgs{
				Name: secretName,
				Key:  pulumi.String("latest"),
			},
		},
	}
}

func createSecrets(ctx *pulumi.Context) (*secretRefs, error) {
	var err error
	sr := new(secretRefs)

	plaidCfg := config.New(ctx, "plaid")
	plaidClientID := plaidCfg.RequireSecret("clientId")
	plaidSecret := plaidCfg.RequireSecret("secret")
	googleAPIKey := config.New(ctx, "gemini").RequireSecret("apiKey")

	sr.plaidClientIDName, err = secret.AddSecret(ctx, "plaidClientIdSecret", "plaidClientId", plaidClientID)
	if err != nil {
		return nil, err
	}

	sr.plaidSecretName, err = secret.AddSecret(ctx, "plaidSecretSecret", "plaidSecret", plaidSecret)
	if err != nil {
		return nil, err
	}

	sr.googleAPIKeyName, err = secret.AddSecret(ctx, "googleApiKeySecret", "googleApiKey", googleAPIKey)
	if err != nil {
		return nil, err
	}

	storeCfg := config.New(ctx, "store")
	if storeCfg.Get("backend") == "postgres" {
		name, err := secret.AddSecret(ctx, "databaseUrlSecret", "databaseUrl", storeCfg.RequireSecret("databaseUrl"))
		if err != nil {
			return nil, err
		}
		sr.databaseURLName = &name
	}

	return sr, nil
}
