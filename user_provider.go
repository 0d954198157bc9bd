package identity

import (
	"context"

	"github.com/goliatone/go-errors"
)

// MaxLoginAttempts is the maximum number of password attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// SubjectProvider resolves login identifiers to subjects and verifies
// passwords. Resolution precedence is fixed: username, then phone, then
// email. When identifiers collide across channels, the earlier channel wins;
// the store does not enforce cross-channel uniqueness, so this rule is
// load-bearing and must not be reordered.
type SubjectProvider struct {
	repo   RepositoryManager
	logger Logger
}

var _ SubjectResolver = (*SubjectProvider)(nil)

// NewSubjectProvider will create a new SubjectProvider
func NewSubjectProvider(repo RepositoryManager) *SubjectProvider {
	return &SubjectProvider{
		repo:   repo,
		logger: defLogger{},
	}
}

func (p *SubjectProvider) WithLogger(logger Logger) *SubjectProvider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// ResolveSubject tries username, then normalized phone, then email. It
// returns ErrIdentityNotFound when no channel matches; store faults are
// wrapped so callers can still treat them as a miss while keeping the cause.
func (p *SubjectProvider) ResolveSubject(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, ErrIdentityNotFound
	}

	users := p.repo.Users()

	if user, err := users.GetByUsername(ctx, identifier); err == nil {
		return user, nil
	} else if !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "username lookup failed")
	}

	if user, err := users.GetByPhone(ctx, NormalizePhone(identifier)); err == nil {
		return user, nil
	} else if !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "phone lookup failed")
	}

	if user, err := users.GetByEmail(ctx, identifier); err == nil {
		return user, nil
	} else if !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "email lookup failed")
	}

	return nil, ErrIdentityNotFound.Clone().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

// VerifyPassword reports whether the supplied password matches the subject's
// credential. Every failure, including store faults and active cooldowns,
// collapses to false so the caller's response cannot reveal which step failed.
func (p *SubjectProvider) VerifyPassword(ctx context.Context, user *User, password string) bool {
	if user == nil || password == "" {
		return false
	}

	attempts := user.LoginAttempts
	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			p.logger.Error("failed to calculate login attempt cooldown", "error", err)
			return false
		}

		if expired {
			attempts = 0
		}
	}

	// too many attempts in the window, cool off
	if attempts > MaxLoginAttempts {
		p.logger.Warn("login throttled", "user_id", user.ID.String())
		return false
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// increment the login_attempts counter and login_attempt_at
		if err2 := p.repo.Users().TrackAttemptedLogin(ctx, user); err2 != nil {
			p.logger.Error("failed to track login attempt", "error", err2)
		}

		return false
	}

	// reset the login_attempts counter and login_attempt_at
	if err := p.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		p.logger.Error("failed to track successful login", "error", err)
	}

	return true
}

type authIdentity struct {
	id       string
	username string
	email    string
	phone    string
}

func (a authIdentity) ID() string       { return a.id }
func (a authIdentity) Username() string { return a.username }
func (a authIdentity) Email() string    { return a.email }
func (a authIdentity) Phone() string    { return a.phone }

var _ Identity = authIdentity{}

// IdentityFromUser projects the read-only view of a subject a flow carries
func IdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}

	return authIdentity{
		id:       user.ID.String(),
		username: user.Username,
		email:    user.Email,
		phone:    user.Phone,
	}
}
