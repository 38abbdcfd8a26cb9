// Package objectstore_test tests the artifact stores.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/doc2speech/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server with JetStream enabled.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		natsServer.Shutdown()
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNatsObjectStore(jetstreamContext, "artifacts")
	require.NoError(t, err)

	ctx := context.Background()
	key := "tts_0123456789abcdef.mp3"
	artifact := []byte{0xFF, 0xFB, 0x90, 0x04, 0x00, 0x01}

	require.NoError(t, store.Upload(ctx, key, artifact))

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, artifact, downloaded)

	info, err := mustObjectStore(t, jetstreamContext, "artifacts").GetInfo(key)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", info.Metadata["content-type"])
}

func TestNatsObjectStore_BindsToExistingBucket(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.NewNatsObjectStore(jetstreamContext, "artifacts")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "tts_a.mp3", []byte("a")))

	second, err := objectstore.NewNatsObjectStore(jetstreamContext, "artifacts")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "tts_a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestNatsObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNatsObjectStore(jetstreamContext, "artifacts")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "tts_missing.mp3")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func mustObjectStore(t *testing.T, js nats.JetStreamContext, bucket string) nats.ObjectStore {
	t.Helper()

	store, err := js.ObjectStore(bucket)
	require.NoError(t, err)

	return store
}
