package identity

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// AuthFlows orchestrates the user-facing authentication flows. Each flow is
// stateless per invocation: the caller supplies everything on each call, steps
// run strictly in sequence, and a later step never runs after an earlier one
// fails.
type AuthFlows struct {
	repo     RepositoryManager
	resolver SubjectResolver
	codes    CodeIssuer
	claims   *ClaimService
	tokens   TokenService
	logger   Logger
	Debug    bool
}

// NewAuthFlows wires the orchestrator from explicitly constructed components
func NewAuthFlows(repo RepositoryManager, codes CodeIssuer, claims *ClaimService, tokens TokenService) *AuthFlows {
	return &AuthFlows{
		repo:     repo,
		resolver: NewSubjectProvider(repo),
		codes:    codes,
		claims:   claims,
		tokens:   tokens,
		logger:   defLogger{},
	}
}

func (f *AuthFlows) WithLogger(logger Logger) *AuthFlows {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// WithResolver overrides the subject resolver
func (f *AuthFlows) WithResolver(resolver SubjectResolver) *AuthFlows {
	if resolver != nil {
		f.resolver = resolver
	}
	return f
}

// CodeChallenge is returned by flows that hand a verification code back to the
// caller for out-of-band delivery.
type CodeChallenge struct {
	UserID        string `json:"user_id"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Code          string `json:"code"`
	ResetPassword bool   `json:"reset_password"`
}

// TokenResult carries the signed bearer token of a successful authentication
type TokenResult struct {
	Token string `json:"token"`
}

// ConfirmResult is the outcome of a mobile confirmation
type ConfirmResult struct {
	PhoneConfirmed bool   `json:"phone_confirmed,omitempty"`
	ResetToken     string `json:"reset_token,omitempty"`
}

// RegisterRequest is the full registration payload
type RegisterRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Phone           string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AcceptPolicy    bool   `json:"accept_policy"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Required, validation.Length(7, 20)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// Register validates uniqueness across all three channels, creates the
// subject, and issues a phone confirmation code. A failed uniqueness check
// aborts before creation; no partial subject is left behind.
func (f *AuthFlows) Register(ctx context.Context, req RegisterRequest) (*CodeChallenge, error) {
	f.debugPayload("register", req)

	if err := req.Validate(); err != nil {
		return nil, wrapValidationError(err)
	}

	if req.Password != req.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	if !req.AcceptPolicy {
		return nil, ErrPolicyNotAccepted
	}

	phone := NormalizePhone(req.Phone)

	if err := f.ensureIdentifiersAvailable(ctx, req.Username, phone, req.Email); err != nil {
		return nil, err
	}

	user := &User{}

	err := f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(req.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		user.PasswordHash = hash
		user.FirstName = req.FirstName
		user.LastName = req.LastName
		user.Email = req.Email
		user.Phone = phone
		user.Username = getUsername(req.Username, req.Email)
		user.EmailValidated = true
		if id, err := hashid.NewUUID(req.Email); err == nil {
			user.ID = id
		}

		if user, err = f.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	code, err := f.codes.Issue(ctx, user.ID, PurposePhone)
	if err != nil {
		return nil, err
	}

	return &CodeChallenge{
		UserID: user.ID.String(),
		Phone:  user.Phone,
		Code:   code,
	}, nil
}

// RegisterWithPhoneRequest registers an account keyed by phone only
type RegisterWithPhoneRequest struct {
	Phone        string `json:"phone_number"`
	AcceptPolicy bool   `json:"accept_policy"`
}

// Validate will run validation rules
func (r RegisterWithPhoneRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required, validation.Length(7, 20)),
	)
}

// RegisterWithPhone creates a subject keyed by phone. The email is a
// placeholder derived from the number, not a deliverable address, and the
// account starts with a random credential until a password reset sets one.
func (f *AuthFlows) RegisterWithPhone(ctx context.Context, req RegisterWithPhoneRequest) (*CodeChallenge, error) {
	f.debugPayload("register-with-phone", req)

	if err := req.Validate(); err != nil {
		return nil, wrapValidationError(err)
	}

	if !req.AcceptPolicy {
		return nil, ErrPolicyNotAccepted
	}

	phone := NormalizePhone(req.Phone)

	if taken, err := f.repo.Users().IsAnyPhone(ctx, phone); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "phone availability check failed")
	} else if taken {
		return nil, ErrIdentifierTaken.Clone().
			WithMetadata(map[string]any{"field": "phone_number"})
	}

	user := &User{}

	err := f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		placeholder := phone + PlaceholderEmailDomain

		user.Phone = phone
		user.Username = phone
		user.Email = placeholder
		user.PasswordHash = RandomPasswordHash()
		if id, err := hashid.NewUUID(placeholder); err == nil {
			user.ID = id
		}

		var err error
		if user, err = f.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	code, err := f.codes.Issue(ctx, user.ID, PurposePhone)
	if err != nil {
		return nil, err
	}

	return &CodeChallenge{
		UserID: user.ID.String(),
		Phone:  user.Phone,
		Code:   code,
	}, nil
}

// ConfirmMobileRequest carries the code presented for phone confirmation
type ConfirmMobileRequest struct {
	Phone         string `json:"phone_number"`
	Code          string `json:"code"`
	ResetPassword bool   `json:"reset_password"`
}

// Validate will run validation rules
func (r ConfirmMobileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required),
		validation.Field(&r.Code, validation.Required),
	)
}

// ConfirmMobile validates a phone confirmation code. When the flow carries the
// reset-password flag it issues a password-reset code instead of marking the
// phone confirmed; otherwise it marks the phone confirmed and the caller must
// log in separately, no token is issued here.
func (f *AuthFlows) ConfirmMobile(ctx context.Context, req ConfirmMobileRequest) (*ConfirmResult, error) {
	f.debugPayload("confirm-mobile", req)

	if err := req.Validate(); err != nil {
		return nil, wrapValidationError(err)
	}

	user, err := f.userByPhone(ctx, req.Phone)
	if err != nil {
		return nil, err
	}

	if !f.codes.Validate(ctx, user.ID, PurposePhone, req.Code) {
		return nil, ErrCodeInvalid
	}

	if req.ResetPassword {
		resetCode, err := f.codes.Issue(ctx, user.ID, PurposePasswordReset)
		if err != nil {
			return nil, err
		}

		return &ConfirmResult{ResetToken: resetCode}, nil
	}

	if err := f.repo.Users().ConfirmPhone(ctx, user.ID); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark phone as confirmed")
	}

	return &ConfirmResult{PhoneConfirmed: true}, nil
}

// LoginRequest carries a password login attempt. The identifier may be a
// username, phone number or email.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login resolves the identifier, verifies the password, aggregates claims and
// issues a token. Password failure and store faults share one failure shape.
func (f *AuthFlows) Login(ctx context.Context, req LoginRequest) (*TokenResult, error) {
	f.debugPayload("login", req)

	if err := req.Validate(); err != nil {
		return nil, wrapValidationError(err)
	}

	user, err := f.resolver.ResolveSubject(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	if !f.resolver.VerifyPassword(ctx, user, req.Password) {
		return nil, ErrMismatchedHashAndPassword
	}

	return f.issueToken(ctx, user)
}

// LoginByPhoneRequest starts the password-less phone login
type LoginByPhoneRequest struct {
	Phone string `json:"phone_number"`
}

// Validate will run validation rules
func (r LoginByPhoneRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required),
	)
}

// LoginByPhone issues a login code for the phone channel. This path is
// password-less end to end: the one-time code is the only factor, no password
// check happens here or in LoginConfirmMobile.
func (f *AuthFlows) LoginByPhone(ctx context.Context, req LoginByPhoneRequest) (*CodeChallenge, error) {
	f.debugPayload("login-by-phone", req)

	if err := req.Validate(); err != nil {
		return nil, wrapValidationError(err)
	}

	user, err := f.userByPhone(ctx, req.Phone)
	if err != nil {
		return nil, err
	}

	code, err := f.codes.Issue(ctx, user.ID, PurposePhone)
	if err != nil {
		return nil, err
	}

	return &CodeChallenge{
		UserID: user.ID.String(),
		Phone:  user.Phone,
		Code:   code,
	}, nil
}

// LoginConfirmMobile completes the phone login: it validates the code and, on
// success, aggregates claims and issues a token.
func (f *AuthFlows) LoginConfirmMobile(ctx context.Context, req ConfirmMobileRequest) (*TokenResult, error) {
	f.debugPayload("login-confirm-mobile", req)

	if err := req.Validate(); err != nil {
		return nil, wrapValidationError(err)
	}

	user, err := f.userByPhone(ctx, req.Phone)
	if err != nil {
		return nil, err
	}

	if !f.codes.Validate(ctx, user.ID, PurposePhone, req.Code) {
		return nil, ErrCodeInvalid
	}

	return f.issueToken(ctx, user)
}

// ForgotPasswordRequest starts a password reset over phone or email. When
// both are supplied the phone wins.
type ForgotPasswordRequest struct {
	Phone string `json:"phone_number"`
	Email string `json:"email"`
}

// ForgotPassword resolves the subject and issues a phone-purpose code; the
// caller presents it to ConfirmMobile with the reset flag, which trades it for
// a password-reset code.
func (f *AuthFlows) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*CodeChallenge, error) {
	f.debugPayload("forgot-password", req)

	var user *User
	var err error

	switch {
	case req.Phone != "":
		user, err = f.userByPhone(ctx, req.Phone)
	case req.Email != "":
		user, err = f.userByEmail(ctx, req.Email)
	default:
		return nil, ErrMissingIdentifier
	}

	if err != nil {
		return nil, err
	}

	code, err := f.codes.Issue(ctx, user.ID, PurposePhone)
	if err != nil {
		return nil, err
	}

	return &CodeChallenge{
		UserID:        user.ID.String(),
		Phone:         user.Phone,
		Email:         user.Email,
		Code:          code,
		ResetPassword: true,
	}, nil
}

// ResetPasswordRequest finalizes a password reset. Proof of ownership is
// either the old password or a password-reset code from ConfirmMobile.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	Phone           string `json:"phone_number"`
	OldPassword     string `json:"old_password"`
	ResetToken      string `json:"reset_token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// ResetPassword verifies ownership proof and replaces the credential. The
// reset is only delegated to the store once proof and the password
// confirmation both hold.
func (f *AuthFlows) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	f.debugPayload("reset-password", req)

	if err := req.Validate(); err != nil {
		return wrapValidationError(err)
	}

	if req.NewPassword != req.ConfirmPassword {
		return ErrPasswordMismatch
	}

	var user *User
	var err error

	// email wins when both identifiers are present
	switch {
	case req.Email != "":
		user, err = f.userByEmail(ctx, req.Email)
	case req.Phone != "":
		user, err = f.userByPhone(ctx, req.Phone)
	default:
		return ErrMissingIdentifier
	}

	if err != nil {
		return err
	}

	if req.ResetToken != "" {
		if !f.codes.Validate(ctx, user.ID, PurposePasswordReset, req.ResetToken) {
			return ErrCodeInvalid
		}
	} else if !f.resolver.VerifyPassword(ctx, user, req.OldPassword) {
		return ErrMismatchedHashAndPassword
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	if err := f.repo.Users().ResetPassword(ctx, user.ID, hash); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset password").
			WithTextCode(TextCodePasswordResetError)
	}

	return nil
}

// RequestEmailChange issues an email-change code for the account owning the
// given address
func (f *AuthFlows) RequestEmailChange(ctx context.Context, email string) (string, error) {
	user, err := f.userByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	return f.codes.Issue(ctx, user.ID, PurposeEmailChange)
}

// RequestPhoneChange issues a phone-change code for the account owning the
// given number
func (f *AuthFlows) RequestPhoneChange(ctx context.Context, phone string) (string, error) {
	user, err := f.userByPhone(ctx, phone)
	if err != nil {
		return "", err
	}

	return f.codes.Issue(ctx, user.ID, PurposePhoneChange)
}

func (f *AuthFlows) issueToken(ctx context.Context, user *User) (*TokenResult, error) {
	roleNames, err := f.repo.Roles().RoleNamesForUser(ctx, user.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enumerate roles for token")
	}

	attributes, err := f.claims.Aggregate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := f.tokens.Generate(user.ID.String(), roleNames, attributes)
	if err != nil {
		return nil, err
	}

	return &TokenResult{Token: token}, nil
}

func (f *AuthFlows) ensureIdentifiersAvailable(ctx context.Context, username, phone, email string) error {
	users := f.repo.Users()

	if taken, err := users.IsAnyUsername(ctx, username); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "username availability check failed")
	} else if taken {
		return ErrIdentifierTaken.Clone().
			WithMetadata(map[string]any{"field": "username"})
	}

	if taken, err := users.IsAnyPhone(ctx, phone); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "phone availability check failed")
	} else if taken {
		return ErrIdentifierTaken.Clone().
			WithMetadata(map[string]any{"field": "phone_number"})
	}

	if taken, err := users.IsAnyEmail(ctx, email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email availability check failed")
	} else if taken {
		return ErrIdentifierTaken.Clone().
			WithMetadata(map[string]any{"field": "email"})
	}

	return nil
}

func (f *AuthFlows) userByPhone(ctx context.Context, phone string) (*User, error) {
	user, err := f.repo.Users().GetByPhone(ctx, NormalizePhone(phone))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "phone lookup failed")
	}
	return user, nil
}

func (f *AuthFlows) userByEmail(ctx context.Context, email string) (*User, error) {
	user, err := f.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "email lookup failed")
	}
	return user, nil
}

func (f *AuthFlows) debugPayload(flow string, payload any) {
	if !f.Debug {
		return
	}
	f.logger.Debug("flow %s payload: %s", flow, print.MaybePrettyJSON(payload))
}

// ValidateStringEquals builds a rule asserting the value equals expected
func ValidateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return goerrors.New("must match the expected value", goerrors.CategoryValidation)
		}
		return nil
	}
}

func getUsername(username, email string) string {
	if username != "" && username != email {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.ReplaceAll(strings.Split(email, "@")[0], ".", "")
	}

	return username
}

func wrapValidationError(err error) error {
	if err == nil {
		return nil
	}

	rich := goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload")

	var fields validation.Errors
	if goerrors.As(err, &fields) {
		meta := make(map[string]any, len(fields))
		for field, ferr := range fields {
			meta[field] = ferr.Error()
		}
		rich = rich.WithMetadata(meta)
	}

	return rich
}
