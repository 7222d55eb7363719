package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/loomline/loomline/internal/shared"
)

// Service wraps authentication business rules: credential verification,
// token issuance and password rotation.
type Service struct {
	repo     Repository
	codec    *TokenCodec
	versions *PasswordVersions
	logger   *slog.Logger
	tokenTTL time.Duration
}

// NewService constructs a Service.
func NewService(repo Repository, codec *TokenCodec, versions *PasswordVersions, logger *slog.Logger, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{repo: repo, codec: codec, versions: versions, logger: logger, tokenTTL: tokenTTL}
}

// Login verifies credentials and issues a signed session token. Usernames
// are NFKC-normalized so visually identical spellings resolve to one account.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (string, *User, error) {
	username = norm.NFKC.String(username)

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		s.audit(ctx, LoginRecord{Username: username, Succeeded: false, IP: ip, UserAgent: userAgent})
		return "", nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.audit(ctx, LoginRecord{UserID: user.ID, Username: username, TenantID: user.TenantID, Succeeded: false, IP: ip, UserAgent: userAgent})
		return "", nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit(ctx, LoginRecord{UserID: user.ID, Username: username, TenantID: user.TenantID, Succeeded: false, IP: ip, UserAgent: userAgent})
		return "", nil, shared.ErrInvalidCredentials
	}

	version := int64(0)
	if s.versions != nil {
		if v, err := s.versions.Current(ctx, user.ID); err == nil {
			version = v
		} else {
			s.logger.Warn("password version unavailable at login", slog.Any("error", err))
		}
	}

	token, err := s.codec.Issue(subjectFor(user, version), s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	s.audit(ctx, LoginRecord{UserID: user.ID, Username: username, TenantID: user.TenantID, Succeeded: true, IP: ip, UserAgent: userAgent})
	return token, user, nil
}

// ChangePassword rotates the password and bumps the version counter so every
// previously issued token dies immediately. It returns a replacement token
// for the active session.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) (string, error) {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return "", shared.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return "", err
	}

	version := int64(0)
	if s.versions != nil {
		if v, err := s.versions.Bump(ctx, userID); err == nil {
			version = v
		} else {
			s.logger.Warn("password version bump failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	return s.codec.Issue(subjectFor(user, version), s.tokenTTL)
}

func (s *Service) findByID(ctx context.Context, userID int64) (*User, error) {
	// The repo keys lookups by username; resolve through the bound principal
	// to avoid widening the repository surface for one internal path.
	p := principalUsername(ctx)
	if p == "" {
		return nil, shared.ErrNotFound
	}
	user, err := s.repo.FindByUsername(ctx, p)
	if err != nil {
		return nil, err
	}
	if user.ID != userID {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *Service) audit(ctx context.Context, rec LoginRecord) {
	if err := s.repo.RecordLogin(ctx, rec); err != nil {
		s.logger.Warn("record login", slog.Any("error", err))
	}
}

func subjectFor(user *User, pwdVersion int64) Subject {
	sub := Subject{
		UserID:      user.ID,
		Username:    user.Username,
		RoleName:    user.RoleName,
		OpenID:      user.OpenID,
		PermRange:   user.PermRange,
		TenantID:    user.TenantID,
		TenantOwner: user.TenantOwner,
		SuperAdmin:  user.SuperAdmin,
		TeamID:      user.TeamID,
		PwdVersion:  pwdVersion,
	}
	if user.RoleID != nil {
		sub.RoleID = formatInt(*user.RoleID)
	}
	return sub
}
