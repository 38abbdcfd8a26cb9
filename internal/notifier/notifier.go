// Package notifier announces finished speech artifacts on NATS.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// Static errors.
var (
	ErrEmptySubject  = errors.New("subject cannot be empty")
	ErrEmptyArtifact = errors.New("artifact name cannot be empty")
)

// NatsNotifier publishes an AudioChunkCreatedEvent for every artifact. The
// event's AudioKey is the artifact name, which is also its key in the
// object store mirror.
type NatsNotifier struct {
	natsConnection *nats.Conn
	subject        string
	log            *logger.Logger
	now            func() time.Time
}

var _ core.Notifier = (*NatsNotifier)(nil)

// New creates a NatsNotifier publishing on subject.
func New(natsConnection *nats.Conn, subject string, log *logger.Logger) (*NatsNotifier, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}

	return &NatsNotifier{
		natsConnection: natsConnection,
		subject:        subject,
		log:            log,
		now:            time.Now,
	}, nil
}

// ArtifactCreated publishes the event and flushes it to the server.
func (n *NatsNotifier) ArtifactCreated(ctx context.Context, artifactName string) error {
	if artifactName == "" {
		return ErrEmptyArtifact
	}

	event := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  n.now().UTC(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
		},
		AudioKey:   artifactName,
		PageNumber: 1,
		TotalPages: 1,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact event: %w", err)
	}

	err = n.natsConnection.Publish(n.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish artifact event on %s: %w", n.subject, err)
	}

	// FlushWithContext requires a deadline.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	err = n.natsConnection.FlushWithContext(flushCtx)
	if err != nil {
		return fmt.Errorf("failed to flush artifact event: %w", err)
	}

	n.log.Info("Announced artifact %s on %s (event %s)", artifactName, n.subject, event.Header.EventID)

	return nil
}
