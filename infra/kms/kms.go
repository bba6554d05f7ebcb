package kms

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/kms"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

const (
	tokenKeyRing = "finance-workers"
	tokenKey     = "plaid-tokens"
)

// SetupTokenKey creates the key that seals Plaid access tokens carried on
// sync jobs and returns its resource name, the value of KMS_KEY_NAME.
// The key is protected: destroying it makes every sealed token unreadable.
func SetupTokenKey(ctx *pulumi.Context, prov *gcp.Provider) (pulumi.StringOutput, error) {
	gcpCfg := config.New(ctx, "gcp")
	location := gcpCfg.Require("region")

	svc, err := projects.NewService(ctx, "kmsService", &projects.ServiceArgs{
		Service: pulumi.String("cloudkms.googleapis.com"),
	}, pulumi.Provider(prov))
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	ring, err := kms.NewKeyRing(ctx, "tokenKeyRing", &kms.KeyRingArgs{
		Location: pulumi.String(location),
		Name:     pulumi.String(tokenKeyRing),
	},
		pulumi.Provider(prov),
		pulumi.DependsOn([]pulumi.Resource{svc}),
	)
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	key, err := kms.NewCryptoKey(ctx, "plaidTokenKey", &kms.CryptoKeyArgs{
		KeyRing:        ring.ID(),
		Name:           pulumi.String(tokenKey),
		Purpose:        pulumi.String("ENCRYPT_DECRYPT"),
		RotationPeriod: pulumi.String("7776000s"), // 90 days
	},
		pulumi.Provider(prov),
		pulumi.Protect(true),
	)
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	return key.ID().ToStringOutput(), nil
}
