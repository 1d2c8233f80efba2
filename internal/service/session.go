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
	"github.com/auric/api/internal/repository"
	apperrors "github.com/auric/api/pkg/errors"
)

// SessionConfig holds the tunables for the session lifecycle.
type SessionConfig struct {
	RefreshTTL        time.Duration
	MaxActiveSessions int
	// ScanLimit bounds how many of the newest active sessions are checked
	// when matching a presented refresh token.
	ScanLimit int
	// ReuseScanLimit bounds how many archived hashes are checked for reuse.
	ReuseScanLimit int
}

// DefaultSessionConfig returns the standard session settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RefreshTTL:        30 * 24 * time.Hour,
		MaxActiveSessions: 5,
		ScanLimit:         50,
		ReuseScanLimit:    100,
	}
}

// SessionService owns the refresh-token lifecycle: creation, rotation, reuse
// detection, and revocation. Refresh tokens are opaque; a presented token is
// matched by comparing it against stored bcrypt hashes in a bounded scan.
type SessionService struct {
	sessions repository.SessionRepository
	revoked  repository.RevokedTokenRepository
	users    repository.UserRepository
	jwt      *auth.JWTManager
	producer *event.Producer
	cfg      SessionConfig
	logger   *slog.Logger

	now func() time.Time
}

// NewSessionService creates the session lifecycle service.
func NewSessionService(
	sessions repository.SessionRepository,
	revoked repository.RevokedTokenRepository,
	users repository.UserRepository,
	jwt *auth.JWTManager,
	producer *event.Producer,
	cfg SessionConfig,
	l *slog.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		revoked:  revoked,
		users:    users,
		jwt:      jwt,
		producer: producer,
		cfg:      cfg,
		logger:   l,
		now:      time.Now,
	}
}

func invalidRefreshToken() *apperrors.AppError {
	return apperrors.WithCode("INVALID_REFRESH_TOKEN", "invalid refresh token", http.StatusUnauthorized, apperrors.ErrUnauthorized)
}

// Create opens a new session for the user and issues a token pair. If the
// user is already at the active-session cap, the oldest sessions are revoked
// to make room before the new one is inserted.
func (s *SessionService) Create(ctx context.Context, user *domain.User, userAgent, ip string) (*domain.Session, *domain.TokenPair, error) {
	now := s.now().UTC()

	active, err := s.sessions.ListActiveByUser(ctx, user.UserID, now, s.cfg.ScanLimit)
	if err != nil {
		return nil, nil, err
	}
	if len(active) >= s.cfg.MaxActiveSessions {
		// Newest-first listing: evict from the tail (oldest createdAt first).
		evict := len(active) - s.cfg.MaxActiveSessions + 1
		for i := 0; i < evict; i++ {
			victim := active[len(active)-1-i]
			if err := s.sessions.Revoke(ctx, victim.ID, domain.RevokeReasonSessionCap, now); err != nil {
				return nil, nil, err
			}
			s.producer.SessionRevoked(ctx, victim.ID, user.UserID, domain.RevokeReasonSessionCap)
			s.logger.InfoContext(ctx, "evicted oldest session at cap",
				slog.String("session_id", victim.ID),
				slog.String("user_id", user.UserID),
			)
		}
	}

	rawToken, err := auth.NewRefreshToken()
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	tokenHash, err := auth.HashRefreshToken(rawToken)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	session := &domain.Session{
		ID:             uuid.New().String(),
		UserID:         user.UserID,
		TokenHash:      &tokenHash,
		SessionVersion: 1,
		UserAgent:      userAgent,
		IPAddress:      ip,
		CreatedAt:      now,
		LastUsedAt:     now,
		ExpiresAt:      now.Add(s.cfg.RefreshTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	accessToken, err := s.jwt.GenerateAccessToken(user.UserID, session.ID, session.SessionVersion, user.Role, user.KycStatus)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	s.producer.SessionCreated(ctx, session.ID, user.UserID)

	return session, &domain.TokenPair{AccessToken: accessToken, RefreshToken: rawToken}, nil
}

// match finds the active session whose stored hash matches the presented
// token, scanning only the newest ScanLimit candidates.
func (s *SessionService) match(ctx context.Context, rawToken string) (*domain.Session, error) {
	now := s.now().UTC()

	candidates, err := s.sessions.ListActiveCandidates(ctx, now, s.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		c := &candidates[i]
		if c.TokenHash != nil && auth.CompareRefreshToken(*c.TokenHash, rawToken) {
			return c, nil
		}
	}

	return nil, nil
}

// DetectReuse checks the presented token against archived hashes from past
// rotations. A match means the token was already rotated away: the linked
// session is revoked and returned. A nil result means the token is clean.
func (s *SessionService) DetectReuse(ctx context.Context, rawToken string) (*domain.Session, error) {
	archived, err := s.revoked.ListRecent(ctx, s.cfg.ReuseScanLimit)
	if err != nil {
		return nil, err
	}

	for i := range archived {
		a := &archived[i]
		if !auth.CompareRefreshToken(a.TokenHash, rawToken) {
			continue
		}

		now := s.now().UTC()
		if err := s.sessions.Revoke(ctx, a.SessionID, domain.RevokeReasonTokenReuse, now); err != nil {
			return nil, err
		}

		s.producer.ReuseDetected(ctx, a.SessionID, a.UserID)
		s.logger.WarnContext(ctx, "refresh token reuse detected, session revoked",
			slog.String("session_id", a.SessionID),
			slog.String("user_id", a.UserID),
		)

		session, err := s.sessions.GetByID(ctx, a.SessionID)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	return nil, nil
}

// Rotate exchanges a valid refresh token for a fresh pair. The old hash is
// archived atomically with the swap, and the session expiry slides forward.
// Callers must run DetectReuse first; Rotate assumes a clean token.
func (s *SessionService) Rotate(ctx context.Context, rawToken string) (*domain.Session, *domain.TokenPair, error) {
	session, err := s.match(ctx, rawToken)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, invalidRefreshToken()
	}

	newRaw, err := auth.NewRefreshToken()
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	newHash, err := auth.HashRefreshToken(newRaw)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.Rotate(ctx, session.ID, *session.TokenHash, newHash, expiresAt, now); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, invalidRefreshToken()
		}
		return nil, nil, err
	}

	session.TokenHash = &newHash
	session.ExpiresAt = expiresAt
	session.LastUsedAt = now

	user, err := s.users.GetByUserID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}

	accessToken, err := s.jwt.GenerateAccessToken(user.UserID, session.ID, session.SessionVersion, user.Role, user.KycStatus)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	s.logger.InfoContext(ctx, "refresh token rotated",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID),
	)

	return session, &domain.TokenPair{AccessToken: accessToken, RefreshToken: newRaw}, nil
}

// Logout revokes the session matching the presented token. Unknown tokens
// are a no-op: logout is idempotent and never reveals token validity.
func (s *SessionService) Logout(ctx context.Context, rawToken string) (*domain.Session, error) {
	session, err := s.match(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	now := s.now().UTC()
	if err := s.sessions.Revoke(ctx, session.ID, domain.RevokeReasonLogout, now); err != nil {
		return nil, err
	}

	s.producer.SessionRevoked(ctx, session.ID, session.UserID, domain.RevokeReasonLogout)
	s.logger.InfoContext(ctx, "session logged out",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID),
	)

	return session, nil
}

// RevokeOwned revokes the given session if it belongs to the user. Returns
// ErrNotFound for unknown or cross-user session IDs so the response does not
// reveal whether the session exists.
func (s *SessionService) RevokeOwned(ctx context.Context, userID, sessionID string) error {
	now := s.now().UTC()

	ok, err := s.sessions.RevokeOwned(ctx, sessionID, userID, domain.RevokeReasonUserRevoked, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("session", sessionID)
	}

	s.producer.SessionRevoked(ctx, sessionID, userID, domain.RevokeReasonUserRevoked)
	return nil
}

// RevokeOthers revokes every active session for the user except the current
// one and returns the number revoked.
func (s *SessionService) RevokeOthers(ctx context.Context, userID, currentSessionID string) (int64, error) {
	now := s.now().UTC()

	n, err := s.sessions.RevokeAllForUser(ctx, userID, currentSessionID, domain.RevokeReasonRevokeOthers, now)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.producer.SessionRevoked(ctx, currentSessionID, userID, domain.RevokeReasonRevokeOthers)
	}
	s.logger.InfoContext(ctx, "revoked other sessions",
		slog.String("user_id", userID),
		slog.Int64("count", n),
	)

	return n, nil
}

// List returns the user's sessions, newest first. By default only live
// sessions are returned; includeRevoked adds revoked and expired ones so
// clients can show device history.
func (s *SessionService) List(ctx context.Context, userID string, includeRevoked bool) ([]domain.Session, error) {
	return s.sessions.ListByUser(ctx, userID, includeRevoked, s.now().UTC())
}

// Validate checks that the session referenced by an access token is still
// live: it exists, is usable, and its version matches the token's.
func (s *SessionService) Validate(ctx context.Context, sessionID string, sessionVersion int) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("session no longer valid")
		}
		return err
	}

	if !session.Usable(s.now().UTC()) || session.SessionVersion != sessionVersion {
		return apperrors.Unauthorized("session no longer valid")
	}

	return nil
}

// PruneExpired removes sessions past their expiry and archived hashes older
// than the retention cutoff. Returns counts of removed rows.
func (s *SessionService) PruneExpired(ctx context.Context, sessionCutoff, revokedCutoff time.Time) (int64, int64, error) {
	prunedSessions, err := s.sessions.PruneExpired(ctx, sessionCutoff)
	if err != nil {
		return 0, 0, err
	}

	prunedTokens, err := s.revoked.PruneOlderThan(ctx, revokedCutoff)
	if err != nil {
		return prunedSessions, 0, err
	}

	return prunedSessions, prunedTokens, nil
}
