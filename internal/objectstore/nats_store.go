// Package objectstore keeps copies of finished audio artifacts, either in a
// local directory or in a NATS JetStream object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	artifactContentType = "audio/mpeg"
	metaContentType     = "content-type"
)

const (
	errFmtBindBucket   = "failed to bind to existing object store bucket '%s': %w"
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtGetObject    = "failed to get artifact '%s' from bucket '%s': %w"
	errFmtReadObject   = "failed to read artifact '%s': %w"
	errFmtCloseObject  = "failed to close artifact '%s': %w"
	errFmtPutObject    = "failed to put artifact '%s' to bucket '%s': %w"
)

// ErrNotFound is returned by Download when no artifact has the key.
var ErrNotFound = errors.New("artifact not found")

// NatsObjectStore mirrors artifacts into a JetStream object store bucket so
// that other services, and this one after local housekeeping, can fetch them.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

var _ core.ObjectStore = (*NatsObjectStore)(nil)

// NewNatsObjectStore creates the bucket, or binds to it when it already exists.
func NewNatsObjectStore(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Speech artifacts of the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindBucket, bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves an artifact. A missing artifact yields ErrNotFound.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf(errFmtGetObject, key, n.bucket, ErrNotFound)
		}

		return nil, fmt.Errorf(errFmtGetObject, key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf(errFmtReadObject, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf(errFmtCloseObject, key, closeErr)
	}

	return data, nil
}

// Upload stores an artifact under key, replacing any previous version.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:     key,
		Metadata: map[string]string{metaContentType: artifactContentType},
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf(errFmtPutObject, key, n.bucket, err)
	}

	return nil
}
