package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/auth"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/ids"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew     = "users.service.new"
	opSignUp         = "users.sign_up"
	opSignIn         = "users.sign_in"
	opSignOut        = "users.sign_out"
	opTokenRevoked   = "users.token_revoked"
	opEmails         = "users.emails"
	opCreateAccount  = "users.create_account"
	opDeleteAccount  = "users.delete_account"
	opRoleOf         = "users.role_of"
	opCreateMember   = "users.create_member"
	opListAdmins     = "users.list_admins"
	opCreateAdmin    = "users.create_admin"
	opUpdateAdmin    = "users.update_admin_role"
	opDeleteAdmin    = "users.delete_admin"
	opBootstrapAdmin = "users.bootstrap_admin"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingProfiles   = errors.New("profile writer is required")
	errMissingTokens     = errors.New("token minter is required")
	errEmailTaken        = errors.New("email is already registered")
	errInvalidLogin      = errors.New("email or password is incorrect")
	errMissingTokenID    = errors.New("session token id is required")
	errAdminNotFound     = errors.New("admin not found")
	errNotAdministrator  = errors.New("administrator role required")
	errNotSuperadmin     = errors.New("superadmin role required")
	errMissingIdentifier = errors.New("user id is required")
)

// ProfileWriter stores the profile created alongside a new account.
type ProfileWriter interface {
	Create(ctx context.Context, profile profiles.Profile) (profiles.Profile, error)
}

// TokenMinter issues session tokens on sign-in.
type TokenMinter interface {
	IssueSessionToken(ctx context.Context, subject auth.Subject) (auth.IssuedToken, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Profiles   ProfileWriter
	Tokens     TokenMinter
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages accounts, sessions and administrative roles.
type Service struct {
	db       *gorm.DB
	profiles ProfileWriter
	tokens   TokenMinter
	ids      ids.Provider
	now      func() time.Time
	logger   *zap.Logger
}

// Session is the outcome of a successful sign-in.
type Session struct {
	User  User
	Token auth.IssuedToken
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.Upstream(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Profiles == nil {
		return nil, apperrors.Upstream(opServiceNew, "missing_profiles", errMissingProfiles)
	}
	if cfg.Tokens == nil {
		return nil, apperrors.Upstream(opServiceNew, "missing_tokens", errMissingTokens)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		profiles: cfg.Profiles,
		tokens:   cfg.Tokens,
		ids:      idProvider,
		now:      clock,
		logger:   logger,
	}, nil
}

// SignUp registers a member account and its profile.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (User, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = normalize(input.Name)
	if err := validateSignUp(opSignUp, input); err != nil {
		return User{}, err
	}
	user, err := s.createAccount(ctx, opSignUp, input.Email, input.Password)
	if err != nil {
		return User{}, err
	}
	if _, err := s.profiles.Create(ctx, profiles.Profile{ID: user.ID, Name: input.Name}); err != nil {
		s.rollbackAccount(ctx, opSignUp, user.ID)
		s.logError(opSignUp, "profile_create_failed", err, zap.String("user_id", user.ID))
		return User{}, apperrors.Upstream(opSignUp, "profile_create_failed", err)
	}
	s.logger.Info("account registered", zap.String("user_id", user.ID))
	return user, nil
}

// SignIn checks credentials and issues a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, apperrors.InvalidRequest(opSignIn, "missing_credentials", errMissingCredential)
	}
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, apperrors.Unauthorized(opSignIn, "invalid_credentials", errInvalidLogin)
	}
	if err != nil {
		s.logError(opSignIn, "query_failed", err)
		return Session{}, apperrors.Upstream(opSignIn, "query_failed", err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Session{}, apperrors.Unauthorized(opSignIn, "invalid_credentials", errInvalidLogin)
		}
		s.logError(opSignIn, "password_compare_failed", err, zap.String("user_id", user.ID))
		return Session{}, apperrors.Upstream(opSignIn, "password_compare_failed", err)
	}
	token, err := s.tokens.IssueSessionToken(ctx, auth.Subject{UserID: user.ID, Email: user.Email})
	if err != nil {
		s.logError(opSignIn, "token_issue_failed", err, zap.String("user_id", user.ID))
		return Session{}, apperrors.Upstream(opSignIn, "token_issue_failed", err)
	}
	return Session{User: user, Token: token}, nil
}

// SignOut revokes the presented session token and prunes revocations past their expiry.
func (s *Service) SignOut(ctx context.Context, claims auth.SessionClaims) error {
	if normalize(claims.TokenID) == "" {
		return apperrors.InvalidRequest(opSignOut, "missing_token_id", errMissingTokenID)
	}
	record := RevokedToken{TokenID: claims.TokenID, UserID: claims.UserID, ExpiresAt: claims.ExpiresAt.UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		s.logError(opSignOut, "revoke_failed", err, zap.String("user_id", claims.UserID))
		return apperrors.Upstream(opSignOut, "revoke_failed", err)
	}
	if err := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now().UTC()).
		Delete(&RevokedToken{}).Error; err != nil {
		s.logger.Warn("revoked token prune failed", zap.Error(err))
	}
	return nil
}

// IsTokenRevoked reports whether a session token id was signed out.
func (s *Service) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&RevokedToken{}).
		Where("token_id = ?", tokenID).
		Count(&count).Error
	if err != nil {
		s.logError(opTokenRevoked, "query_failed", err)
		return false, apperrors.Upstream(opTokenRevoked, "query_failed", err)
	}
	return count > 0, nil
}

// Emails maps user ids to their account email.
func (s *Service) Emails(ctx context.Context, userIDs []string) (map[string]string, error) {
	emails := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return emails, nil
	}
	var rows []User
	if err := s.db.WithContext(ctx).
		Select("id", "email").
		Where("id IN ?", userIDs).
		Find(&rows).Error; err != nil {
		s.logError(opEmails, "query_failed", err)
		return nil, apperrors.Upstream(opEmails, "query_failed", err)
	}
	for _, row := range rows {
		emails[row.ID] = row.Email
	}
	return emails, nil
}

func (s *Service) createAccount(ctx context.Context, operation, email, password string) (User, error) {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		s.logError(operation, "query_failed", err)
		return User{}, apperrors.Upstream(operation, "query_failed", err)
	}
	if existing > 0 {
		return User{}, apperrors.Conflict(operation, "email_taken", errEmailTaken)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logError(operation, "password_hash_failed", err)
		return User{}, apperrors.Upstream(operation, "password_hash_failed", err)
	}
	userID, err := s.ids.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return User{}, apperrors.Upstream(operation, "id_generation_failed", err)
	}
	now := s.now().UTC()
	user := User{ID: userID, Email: email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") {
			return User{}, apperrors.Conflict(operation, "email_taken", errEmailTaken)
		}
		s.logError(opCreateAccount, "insert_failed", err)
		return User{}, apperrors.Upstream(operation, "insert_failed", err)
	}
	return user, nil
}

// rollbackAccount deletes an account whose dependent rows could not be written.
func (s *Service) rollbackAccount(ctx context.Context, operation, userID string) {
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Delete(&User{}).Error; err != nil {
		s.logError(opDeleteAccount, "rollback_failed", err,
			zap.String("user_id", userID),
			zap.String("caller", operation))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
