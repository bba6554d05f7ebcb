package crypto

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

// fakeKeys "encrypts" by reversing the bytes.
type fakeKeys struct {
	err  error
	name string
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func (f *fakeKeys) Encrypt(_ context.Context, req *kmspb.EncryptRequest, _ ...gax.CallOption) (*kmspb.EncryptResponse, error) {
	f.name = req.Name
	if f.err != nil {
		return nil, f.err
	}
	return &kmspb.EncryptResponse{Ciphertext: reverse(req.Plaintext)}, nil
}

func (f *fakeKeys) Decrypt(_ context.Context, req *kmspb.DecryptRequest, _ ...gax.CallOption) (*kmspb.DecryptResponse, error) {
	f.name = req.Name
	if f.err != nil {
		return nil, f.err
	}
	return &kmspb.DecryptResponse{Plaintext: reverse(req.Ciphertext)}, nil
}

const keyName = "projects/p/locations/l/keyRings/r/cryptoKeys/k"

func TestSealAndOpenToken(t *testing.T) {
	keys := &fakeKeys{}
	k := NewKMS(keys, keyName)
	ctx := context.Background()

	sealed, err := k.SealToken(ctx, "access-sandbox-123")
	if err != nil {
		t.Fatal(err)
	}
	if sealed[:len(EncryptedPrefix)] != EncryptedPrefix || keys.name != keyName {
		t.Fatalf("sealed = %q with key %q", sealed, keys.name)
	}

	opened, err := k.OpenToken(ctx, sealed)
	if err != nil || opened != "access-sandbox-123" {
		t.Fatalf("OpenToken = %q, %v", opened, err)
	}
}

func TestOpenTokenPassesPlainTokens(t *testing.T) {
	keys := &fakeKeys{err: errors.New("must not be called")}
	got, err := NewKMS(keys, keyName).OpenToken(context.Background(), "access-sandbox-123")
	if err != nil || got != "access-sandbox-123" {
		t.Fatalf("OpenToken = %q, %v", got, err)
	}
}

func TestOpenTokenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewKMS(&fakeKeys{}, keyName).OpenToken(ctx, "kms:%%%")
	if !errs.IsFatal(err) {
		t.Fatalf("bad base64 should be fatal, got %v", err)
	}

	_, err = NewKMS(&fakeKeys{err: status.Error(codes.Unavailable, "try later")}, keyName).OpenToken(ctx, "kms:YWJj")
	if !errs.IsTransient(err) {
		t.Fatalf("unavailable should be transient, got %v", err)
	}

	_, err = NewKMS(&fakeKeys{err: status.Error(codes.InvalidArgument, "bad ciphertext")}, keyName).OpenToken(ctx, "kms:YWJj")
	var ext *errs.ExternalServiceError
	if !errors.As(err, &ext) || ext.Transient {
		t.Fatalf("invalid ciphertext should be a permanent kms error, got %v", err)
	}
}
