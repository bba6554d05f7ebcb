package store

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

// Secrets path
// projects/{project}/secrets/plaid-access-token-{uid}-{itemID}/versions/latest

type plaidSecretsStore struct {
	client    *secretmanager.Client
	projectID string
	prefix    string
}

func NewPlaidSecretsStore(client *secretmanager.Client, projectID string) *plaidSecretsStore {
	return &plaidSecretsStore{
		client:    client,
		projectID: projectID,
		prefix:    "plaid-access-token",
	}
}

func (s *plaidSecretsStore) secretID(uid, itemID string) string {
	return fmt.Sprintf("%s-%s-%s", s.prefix, uid, itemID)
}

func (s *plaidSecretsStore) secretName(uid, itemID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, s.secretID(uid, itemID))
}

// GetPlaidToken reads the latest stored access token for an item.
func (s *plaidSecretsStore) GetPlaidToken(ctx context.Context, uid, itemID string) (string, error) {
	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("%s/versions/latest", s.secretName(uid, itemID)),
	})
	if isNotFound(err) {
		return "", errs.NewNotFoundError(fmt.Sprintf("no access token stored for item %s", itemID))
	}
	if err != nil {
		return "", errs.NewExternalServiceError("secretmanager", true, "", err)
	}
	return string(res.Payload.Data), nil
}
