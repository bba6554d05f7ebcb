// Package crypto seals Plaid access tokens so they can travel on queue
// payloads, using a Cloud KMS symmetric key.
package crypto

import (
	"context"
	"encoding/base64"
	"strings"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

// EncryptedPrefix marks a job payload token as KMS ciphertext.
const EncryptedPrefix = "kms:"

// keyClient is the part of *kms.KeyManagementClient used here.
type keyClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
}

type kms struct {
	client  keyClient
	keyName string
}

func NewKMS(client keyClient, keyName string) *kms {
	return &kms{client: client, keyName: keyName}
}

// Encrypt returns base64 ciphertext of plaintext under the configured key.
func (k *kms) Encrypt(ctx context.Context, plaintext string) (string, error) {
	resp, err := k.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      k.keyName,
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", kmsError(err)
	}
	return base64.StdEncoding.EncodeToString(resp.Ciphertext), nil
}

// Decrypt reverses Encrypt. Malformed ciphertext is a validation error since
// retrying cannot fix it.
func (k *kms) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errs.NewValidationError("sealed token is not valid base64")
	}
	resp, err := k.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       k.keyName,
		Ciphertext: raw,
	})
	if err != nil {
		return "", kmsError(err)
	}
	return string(resp.Plaintext), nil
}

func (k *kms) SealToken(ctx context.Context, token string) (string, error) {
	ct, err := k.Encrypt(ctx, token)
	if err != nil {
		return "", err
	}
	return EncryptedPrefix + ct, nil
}

// OpenToken returns token unchanged unless it carries EncryptedPrefix.
func (k *kms) OpenToken(ctx context.Context, token string) (string, error) {
	ct, ok := strings.CutPrefix(token, EncryptedPrefix)
	if !ok {
		return token, nil
	}
	return k.Decrypt(ctx, ct)
}

func kmsError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return errs.NewExternalServiceError("kms", true, status.Convert(err).Message(), err)
	default:
		return errs.NewExternalServiceError("kms", false, status.Convert(err).Message(), err)
	}
}
