package vertex

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// SetupVertex enables both generative backends the smart input worker can
// use: Vertex AI with the service account, and the Gemini API with a key.
func SetupVertex(ctx *pulumi.Context, prov *gcp.Provider) error {
	apis := map[string]string{
		"vertex":             "aiplatform.googleapis.com",
		"generativeLanguage": "generativelanguage.googleapis.com",
	}
	for name, api := range apis {
		_, err := projects.NewService(ctx, name, &projects.ServiceArgs{
			Service:          pulumi.String(api),
			DisableOnDestroy: pulumi.Bool(false),
		},
			pulumi.Provider(prov),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
