package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/domain"
	"github.com/auric/api/internal/event"
	"github.com/auric/api/internal/notify"
	"github.com/auric/api/internal/repository"
	apperrors "github.com/auric/api/pkg/errors"
)

// OtpConfig holds the tunables for the one-time code engine.
type OtpConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

// DefaultOtpConfig returns the standard challenge settings.
func DefaultOtpConfig() OtpConfig {
	return OtpConfig{
		CodeTTL:     5 * time.Minute,
		MaxAttempts: 5,
	}
}

// notifySendTimeout bounds code delivery so a slow provider cannot hold the
// issuance request open.
const notifySendTimeout = 5 * time.Second

// OtpService issues and verifies one-time codes. Codes are stored hashed;
// verification counts attempts atomically and consumes the challenge on
// success.
type OtpService struct {
	challenges repository.OtpChallengeRepository
	sender     notify.Sender
	limiter    RateLimiter
	producer   *event.Producer
	cfg        OtpConfig
	logger     *slog.Logger

	now func() time.Time
}

// NewOtpService creates the one-time code service.
func NewOtpService(
	challenges repository.OtpChallengeRepository,
	sender notify.Sender,
	limiter RateLimiter,
	producer *event.Producer,
	cfg OtpConfig,
	l *slog.Logger,
) *OtpService {
	return &OtpService{
		challenges: challenges,
		sender:     sender,
		limiter:    limiter,
		producer:   producer,
		cfg:        cfg,
		logger:     l,
		now:        time.Now,
	}
}

// SendCode issues a fresh challenge for the target and delivers the code.
// Sends are rate limited per target; the limit applies across purposes so a
// target cannot be flooded through different flows.
func (s *OtpService) SendCode(ctx context.Context, channel, target, purpose string) (*domain.OtpChallenge, error) {
	allowed, err := s.limiter.Allow(ctx, channel+":"+target)
	if err != nil {
		// Limiter outage must not take down login; log and continue.
		s.logger.WarnContext(ctx, "otp rate limiter unavailable", slog.String("error", err.Error()))
	} else if !allowed {
		return nil, apperrors.TooManyRequests("OTP_RATE_LIMITED", "too many codes requested, try again later")
	}

	code, err := auth.NewOTPCode()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	codeHash, err := auth.HashOTPCode(code)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := s.now().UTC()
	challenge := &domain.OtpChallenge{
		ID:        uuid.New().String(),
		Channel:   channel,
		Target:    target,
		Purpose:   purpose,
		CodeHash:  codeHash,
		Attempts:  0,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
		CreatedAt: now,
	}

	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, err
	}

	// Delivery failure is not fatal: the challenge exists and the user can
	// request a resend.
	sendCtx, cancel := context.WithTimeout(ctx, notifySendTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, channel, target, code); err != nil {
		s.logger.ErrorContext(ctx, "otp delivery failed",
			slog.String("challenge_id", challenge.ID),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}

	s.producer.OtpSent(ctx, challenge.ID, channel, purpose)

	s.logger.InfoContext(ctx, "otp challenge issued",
		slog.String("challenge_id", challenge.ID),
		slog.String("channel", channel),
		slog.String("purpose", purpose),
	)

	return challenge, nil
}

// validCodeShape reports whether the submission looks like an issued code:
// exactly six decimal digits.
func validCodeShape(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// VerifyCode checks a submitted code against the newest active challenge.
// Malformed submissions are rejected before any lookup so internal callers
// cannot burn an attempt on input a client could never have received. Every
// well-formed submission counts as an attempt, counted in the database before
// the code is compared so concurrent guesses cannot share a slot. On success
// the challenge is consumed and older active challenges for the same target
// are invalidated.
func (s *OtpService) VerifyCode(ctx context.Context, channel, target, purpose, code string) (*domain.OtpChallenge, error) {
	if channel != domain.ChannelSMS && channel != domain.ChannelEmail {
		return nil, apperrors.InvalidInput("unsupported channel")
	}
	if !validCodeShape(code) {
		return nil, apperrors.InvalidInput("code must be six digits")
	}

	now := s.now().UTC()

	challenge, err := s.challenges.GetLatestActive(ctx, channel, target, purpose, now)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.WithCode("OTP_NOT_FOUND", "no active code for this target, request a new one", http.StatusBadRequest, apperrors.ErrInvalidInput)
		}
		return nil, err
	}

	attempts, err := s.challenges.IncrementAttempts(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	if attempts > s.cfg.MaxAttempts {
		return nil, apperrors.TooManyRequests("TOO_MANY_ATTEMPTS", "too many incorrect attempts, request a new code")
	}

	if !auth.CompareOTPCode(challenge.CodeHash, code) {
		if attempts >= s.cfg.MaxAttempts {
			// The capping miss burns the challenge so the correct code
			// cannot land afterwards.
			if err := s.challenges.Consume(ctx, challenge.ID, now); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				s.logger.WarnContext(ctx, "failed to consume exhausted challenge",
					slog.String("challenge_id", challenge.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil, apperrors.TooManyRequests("TOO_MANY_ATTEMPTS", "too many incorrect attempts, request a new code")
		}
		s.logger.InfoContext(ctx, "otp verification failed",
			slog.String("challenge_id", challenge.ID),
			slog.Int("attempts", attempts),
		)
		return nil, apperrors.WithCode("INVALID_CODE", "incorrect code", http.StatusBadRequest, apperrors.ErrInvalidInput)
	}

	if err := s.challenges.Consume(ctx, challenge.ID, now); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "otp challenge consumed",
		slog.String("challenge_id", challenge.ID),
		slog.String("purpose", purpose),
	)

	return challenge, nil
}

// PruneExpired removes challenges whose expiry passed before the cutoff.
func (s *OtpService) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.challenges.PruneExpired(ctx, cutoff)
}
