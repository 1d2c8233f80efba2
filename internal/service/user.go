package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/auric/api/internal/domain"
	"github.com/auric/api/internal/event"
	"github.com/auric/api/internal/repository"
	apperrors "github.com/auric/api/pkg/errors"
)

const (
	userIDCreateRetries = 5
	defaultCurrency     = "INR"
)

// UserConfig holds the tunables for user provisioning.
type UserConfig struct {
	UserIDPrefix string
}

// UserService handles login, user bootstrap, profile, and KYC.
type UserService struct {
	users    repository.UserRepository
	wallets  repository.WalletRepository
	otp      *OtpService
	sessions *SessionService
	producer *event.Producer
	cfg      UserConfig
	logger   *slog.Logger

	now func() time.Time
}

// NewUserService creates the user service.
func NewUserService(
	users repository.UserRepository,
	wallets repository.WalletRepository,
	otp *OtpService,
	sessions *SessionService,
	producer *event.Producer,
	cfg UserConfig,
	l *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		wallets:  wallets,
		otp:      otp,
		sessions: sessions,
		producer: producer,
		cfg:      cfg,
		logger:   l,
		now:      time.Now,
	}
}

// LoginResult is the outcome of a successful OTP login.
type LoginResult struct {
	User    *domain.User
	Session *domain.Session
	Tokens  *domain.TokenPair
	IsNew   bool
}

// LoginWithOtp verifies the submitted code and establishes a session. A first
// login for an unknown identity bootstraps the user and their wallet.
func (s *UserService) LoginWithOtp(ctx context.Context, channel, target, code, userAgent, ip string) (*LoginResult, error) {
	if _, err := s.otp.VerifyCode(ctx, channel, target, domain.PurposeLogin, code); err != nil {
		return nil, err
	}

	user, isNew, err := s.findOrCreateUser(ctx, channel, target)
	if err != nil {
		return nil, err
	}

	session, tokens, err := s.sessions.Create(ctx, user, userAgent, ip)
	if err != nil {
		return nil, err
	}

	if isNew {
		s.producer.UserRegistered(ctx, user.UserID, channel)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.UserID),
		slog.String("channel", channel),
		slog.Bool("new_user", isNew),
	)

	return &LoginResult{User: user, Session: session, Tokens: tokens, IsNew: isNew}, nil
}

// findOrCreateUser looks up the identity and provisions a user plus wallet on
// first login. The business identifier is regenerated on unique collision.
func (s *UserService) findOrCreateUser(ctx context.Context, channel, target string) (*domain.User, bool, error) {
	var user *domain.User
	var err error

	switch channel {
	case domain.ChannelSMS:
		user, err = s.users.GetByPhone(ctx, target)
	case domain.ChannelEmail:
		user, err = s.users.GetByEmail(ctx, target)
	default:
		return nil, false, apperrors.InvalidInput("unsupported channel")
	}

	if err == nil {
		// Verified channel ownership: mark it if not already.
		changed := false
		if channel == domain.ChannelSMS && !user.PhoneVerified {
			user.PhoneVerified = true
			changed = true
		}
		if channel == domain.ChannelEmail && !user.EmailVerified {
			user.EmailVerified = true
			changed = true
		}
		if changed {
			if err := s.users.Update(ctx, user); err != nil {
				return nil, false, err
			}
		}
		return user, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	now := s.now().UTC()
	user = &domain.User{
		ID:        uuid.New().String(),
		Role:      domain.RoleUser,
		KycStatus: domain.KycUnverified,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch channel {
	case domain.ChannelSMS:
		user.Phone = target
		user.PhoneVerified = true
	case domain.ChannelEmail:
		user.Email = target
		user.EmailVerified = true
	}

	for attempt := 0; attempt < userIDCreateRetries; attempt++ {
		user.UserID, err = generateUserID(s.cfg.UserIDPrefix, "IND")
		if err != nil {
			return nil, false, apperrors.Internal(err)
		}

		err = s.users.Create(ctx, user)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, false, err
		}
	}
	if err != nil {
		return nil, false, err
	}

	if err := s.wallets.CreateIfAbsent(ctx, user.UserID, defaultCurrency); err != nil {
		return nil, false, err
	}

	s.logger.InfoContext(ctx, "user bootstrapped",
		slog.String("user_id", user.UserID),
		slog.String("channel", channel),
	)

	return user, true, nil
}

// GetProfile returns the user's profile by business identifier.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, err
	}
	return user, nil
}

// ProfileUpdate carries the mutable profile fields. Nil pointers leave the
// field unchanged.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *time.Time
}

// UpdateProfile applies the given changes to the user's profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.DateOfBirth != nil {
		user.DateOfBirth = upd.DateOfBirth
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.producer.UserUpdated(ctx, user.UserID)

	return user, nil
}

// SetEmail attaches an unverified email address to the account and sends a
// verification code to it.
func (s *UserService) SetEmail(ctx context.Context, userID, email string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if other, err := s.users.GetByEmail(ctx, email); err == nil && other.UserID != userID {
		return apperrors.AlreadyExists("user", "email", email)
	} else if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	user.Email = email
	user.EmailVerified = false
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	if _, err := s.otp.SendCode(ctx, domain.ChannelEmail, email, domain.PurposeVerifyEmail); err != nil {
		return err
	}

	return nil
}

// VerifyEmail confirms the pending email address with the submitted code.
func (s *UserService) VerifyEmail(ctx context.Context, userID, code string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return apperrors.InvalidInput("no email address on account")
	}
	if user.EmailVerified {
		return nil
	}

	if _, err := s.otp.VerifyCode(ctx, domain.ChannelEmail, user.Email, domain.PurposeVerifyEmail, code); err != nil {
		return err
	}

	user.EmailVerified = true
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.producer.UserUpdated(ctx, user.UserID)

	return nil
}

// SubmitKyc records an identity submission and moves the user to PENDING.
// A user already VERIFIED or with a submission under review cannot resubmit.
func (s *UserService) SubmitKyc(ctx context.Context, userID, documentType, documentNumber, fullName string) (*domain.KycSubmission, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch user.KycStatus {
	case domain.KycVerified:
		return nil, apperrors.InvalidInput("identity already verified")
	case domain.KycPending:
		return nil, apperrors.InvalidInput("a submission is already under review")
	}

	sub := &domain.KycSubmission{
		ID:             uuid.New().String(),
		UserID:         user.UserID,
		DocumentType:   documentType,
		DocumentNumber: documentNumber,
		FullName:       fullName,
		Status:         domain.KycPending,
		SubmittedAt:    s.now().UTC(),
	}

	if err := s.users.CreateKycSubmission(ctx, sub); err != nil {
		return nil, err
	}

	s.producer.KycSubmitted(ctx, user.UserID, documentType)
	s.logger.InfoContext(ctx, "kyc submitted",
		slog.String("user_id", user.UserID),
		slog.String("document_type", documentType),
	)

	return sub, nil
}
