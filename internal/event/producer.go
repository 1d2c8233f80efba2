package event

import (
	"context"
	"log/slog"

	"github.com/auric/api/pkg/kafka"
	"github.com/auric/api/pkg/logger"
)

// Kafka topics for published events.
const (
	TopicUserEvents    = "auric.user.events"
	TopicAuthEvents    = "auric.auth.events"
	TopicWalletEvents  = "auric.wallet.events"
	sourceService      = "auric-api"
	aggregateUser      = "user"
	aggregateSession   = "session"
	aggregateWallet    = "wallet"
	aggregateChallenge = "otp_challenge"
)

// Event types.
const (
	TypeUserRegistered  = "user.registered"
	TypeUserUpdated     = "user.updated"
	TypeKycSubmitted    = "user.kyc_submitted"
	TypeOtpSent         = "otp.sent"
	TypeSessionCreated  = "session.created"
	TypeSessionRevoked  = "session.revoked"
	TypeReuseDetected   = "session.reuse_detected"
	TypeWalletDeposited = "wallet.deposited"
)

// Publisher is the interface services use to emit domain events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Producer publishes domain events to Kafka. Publish failures are logged and
// swallowed; event delivery is best-effort and never fails a user request.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a domain event producer.
func NewProducer(publisher Publisher, l *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: l}
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID, aggregateType string, data any) {
	if p == nil || p.publisher == nil {
		return
	}

	evt, err := kafka.NewEvent(eventType, aggregateID, aggregateType, sourceService, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// UserRegistered emits a user.registered event.
func (p *Producer) UserRegistered(ctx context.Context, userID, channel string) {
	p.publish(ctx, TopicUserEvents, TypeUserRegistered, userID, aggregateUser, map[string]string{
		"user_id": userID,
		"channel": channel,
	})
}

// UserUpdated emits a user.updated event.
func (p *Producer) UserUpdated(ctx context.Context, userID string) {
	p.publish(ctx, TopicUserEvents, TypeUserUpdated, userID, aggregateUser, map[string]string{
		"user_id": userID,
	})
}

// KycSubmitted emits a user.kyc_submitted event.
func (p *Producer) KycSubmitted(ctx context.Context, userID, documentType string) {
	p.publish(ctx, TopicUserEvents, TypeKycSubmitted, userID, aggregateUser, map[string]string{
		"user_id":       userID,
		"document_type": documentType,
	})
}

// OtpSent emits an otp.sent event. The target is not included to keep
// PII out of the event stream.
func (p *Producer) OtpSent(ctx context.Context, challengeID, channel, purpose string) {
	p.publish(ctx, TopicAuthEvents, TypeOtpSent, challengeID, aggregateChallenge, map[string]string{
		"challenge_id": challengeID,
		"channel":      channel,
		"purpose":      purpose,
	})
}

// SessionCreated emits a session.created event.
func (p *Producer) SessionCreated(ctx context.Context, sessionID, userID string) {
	p.publish(ctx, TopicAuthEvents, TypeSessionCreated, sessionID, aggregateSession, map[string]string{
		"session_id": sessionID,
		"user_id":    userID,
	})
}

// SessionRevoked emits a session.revoked event.
func (p *Producer) SessionRevoked(ctx context.Context, sessionID, userID, reason string) {
	p.publish(ctx, TopicAuthEvents, TypeSessionRevoked, sessionID, aggregateSession, map[string]string{
		"session_id": sessionID,
		"user_id":    userID,
		"reason":     reason,
	})
}

// ReuseDetected emits a session.reuse_detected event.
func (p *Producer) ReuseDetected(ctx context.Context, sessionID, userID string) {
	p.publish(ctx, TopicAuthEvents, TypeReuseDetected, sessionID, aggregateSession, map[string]string{
		"session_id": sessionID,
		"user_id":    userID,
	})
}

// WalletDeposited emits a wallet.deposited event.
func (p *Producer) WalletDeposited(ctx context.Context, walletID, userID string, amount int64) {
	p.publish(ctx, TopicWalletEvents, TypeWalletDeposited, walletID, aggregateWallet, map[string]any{
		"wallet_id": walletID,
		"user_id":   userID,
		"amount":    amount,
	})
}
