package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/normalizer"
)

// PublisherConfig holds the configuration for publishing feed submissions
type PublisherConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

// Publisher publishes raw candidates on behalf of a feed
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// Publish sends a submission to the feed's subject. Malformed URLs are rejected
	// before publishing.
	Publish(ctx context.Context, submission Submission) error
	// Close closes the connection
	Close()
}

type publisher struct {
	nc adapter.NatsConn
	js adapter.JetStream
}

// NewPublisher creates a new NATS JetStream publisher
func NewPublisher(cfg PublisherConfig, natsJS adapter.NatsJetStream) (Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &publisher{
		nc: nc,
		js: js,
	}, nil
}

// Publish publishes a submission under storefront.candidates.<source>. The message id
// is derived from the dedup key so JetStream drops repeats inside its duplicate window.
func (p *publisher) Publish(ctx context.Context, submission Submission) error {
	candidate, err := normalizer.Normalize(submission.URL)
	if err != nil {
		return err
	}

	subject, err := SubjectForSource(submission.Source)
	if err != nil {
		return err
	}

	data, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	msgID := submission.Source + ":" + candidate.DedupKey
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}

	logger.DebugCtx(ctx, "Published submission",
		zap.String("subject", subject),
		zap.String("url", candidate.URL),
	)
	return nil
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}
	p.nc.Close()
}

// SubjectForSource returns the subject a feed publishes under. Sources must be a
// single NATS subject token.
func SubjectForSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%w: source is required", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(source, ".*> \t") {
		return "", fmt.Errorf("%w: source %q is not a single subject token", domain.ErrInvalidInput, source)
	}
	return SUBJECT_PREFIX + source, nil
}
