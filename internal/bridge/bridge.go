package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/discovery"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
)

// SUBJECT_PREFIX is the subject prefix feeds publish candidates under; the last
// token is the feed source
const SUBJECT_PREFIX = "storefront.candidates."

// Config holds the configuration for the discovery bridge
type Config struct {
	URL            string
	StreamName     string
	ConsumerName   string
	SubjectFilter  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	AckWaitTimeout time.Duration
	MaxDeliver     int
	Workers        int
}

// Submission is the JSON payload published by feed collaborators
type Submission struct {
	URL      string         `json:"url"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// Bridge defines the interface for the discovery bridge
type Bridge interface {
	// Run consumes feed submissions until the context is canceled
	Run(ctx context.Context) error
	// Close closes the bridge and cleans up resources
	Close()
}

type bridge struct {
	nc        adapter.NatsConn
	js        adapter.JetStream
	submitter discovery.Submitter
	config    Config
}

// NewBridge connects to NATS and creates a new discovery bridge
func NewBridge(cfg Config, natsJS adapter.NatsJetStream, submitter discovery.Submitter) (Bridge, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.SubjectFilter == "" {
		cfg.SubjectFilter = SUBJECT_PREFIX + ">"
	}

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
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &bridge{
		nc:        nc,
		js:        js,
		submitter: submitter,
		config:    cfg,
	}, nil
}

// Run consumes feed submissions until the context is canceled
func (b *bridge) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "Starting discovery bridge",
		zap.String("stream", b.config.StreamName),
		zap.String("consumer", b.config.ConsumerName),
		zap.String("subject", b.config.SubjectFilter),
	)

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       b.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.config.AckWaitTimeout,
		MaxDeliver:    b.config.MaxDeliver,
		FilterSubject: b.config.SubjectFilter,
	}

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.config.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.InfoCtx(ctx, "Consumer created/retrieved", zap.String("consumer", consumerInfo.Name))

	pool := pond.NewPool(b.config.Workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	msgChan := make(chan adapter.Message, b.config.Workers*2)
	sub, err := consumer.Consume(func(msg adapter.Message) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
			// Nobody reads msgChan once Run has returned
			if err := msg.Nak(); err != nil {
				logger.WarnCtx(ctx, "Failed to NAK message on shutdown", zap.Error(err))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.InfoCtx(ctx, "Started consuming submissions")

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Shutting down discovery bridge")
			return ctx.Err()
		case msg := <-msgChan:
			pool.Submit(func() {
				b.handleMessage(ctx, msg)
			})
		}
	}
}

// handleMessage submits a single feed message. Unparseable or invalid submissions are
// terminated; store failures are redelivered.
func (b *bridge) handleMessage(ctx context.Context, msg adapter.Message) {
	var deliveries uint64
	if metadata, err := msg.Metadata(); err == nil && metadata != nil {
		deliveries = metadata.NumDelivered
	}

	var submission Submission
	if err := json.Unmarshal(msg.Data(), &submission); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to unmarshal submission"), zap.String("subject", msg.Subject()))
		b.term(ctx, msg)
		return
	}

	source := strings.TrimSpace(submission.Source)
	if source == "" {
		source = SourceFromSubject(msg.Subject())
	}

	result, err := b.submitter.Submit(ctx, submission.URL, source, submission.Metadata)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			logger.WarnCtx(ctx, "Rejected invalid submission",
				zap.String("subject", msg.Subject()),
				zap.String("url", submission.URL),
				zap.Error(err),
			)
			b.term(ctx, msg)
			return
		}

		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to submit candidate"),
			zap.String("url", submission.URL),
			zap.Uint64("deliveryCount", deliveries),
		)
		if err := msg.Nak(); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Failed to NAK message"))
		}
		return
	}

	logger.DebugCtx(ctx, "Submission accepted",
		zap.String("record_id", result.RecordID),
		zap.Bool("created", result.Created),
		zap.String("source", source),
		zap.Uint64("deliveryCount", deliveries),
	)

	if err := msg.Ack(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to ACK message"))
	}
}

func (b *bridge) term(ctx context.Context, msg adapter.Message) {
	if err := msg.Term(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to terminate message"))
	}
}

// SourceFromSubject returns the feed source encoded in a submission subject
func SourceFromSubject(subject string) string {
	source, ok := strings.CutPrefix(subject, SUBJECT_PREFIX)
	if !ok {
		return ""
	}
	return source
}

// Close closes the bridge and cleans up resources
func (b *bridge) Close() {
	if b.nc == nil {
		return
	}

	b.nc.Close()
}
