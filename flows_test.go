package identity_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFlows(t *testing.T) (identity.RepositoryManager, identity.CodeIssuer, *identity.AuthFlows, identity.TokenService) {
	t.Helper()

	repo := setupRepoManager(t)
	codes := identity.NewCodeIssuer(repo)
	claims := identity.NewClaimService(repo)
	tokens := identity.NewTokenService([]byte("test-signing-key"), 1, nil)

	return repo, codes, identity.NewAuthFlows(repo, codes, claims, tokens), tokens
}

func validRegisterRequest() identity.RegisterRequest {
	return identity.RegisterRequest{
		FirstName:       "Jane",
		LastName:        "Doe",
		Username:        "janedoe",
		Email:           "jane.doe@example.com",
		Phone:           "(212) 555-0142",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		AcceptPolicy:    true,
	}
}

func assertTextCode(t *testing.T, err error, textCode string) {
	t.Helper()

	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, textCode, rich.TextCode)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		repo, codes, flows, _ := setupFlows(t)

		challenge, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)
		require.NotNil(t, challenge)
		assert.NotEmpty(t, challenge.UserID)
		assert.NotEmpty(t, challenge.Code)
		assert.Equal(t, "+12125550142", challenge.Phone)
		assert.False(t, challenge.ResetPassword)

		user, err := repo.Users().GetByUsername(ctx, "janedoe")
		require.NoError(t, err)
		assert.Equal(t, challenge.UserID, user.ID.String())
		assert.Equal(t, "jane.doe@example.com", user.Email)
		assert.Equal(t, "+12125550142", user.Phone)
		assert.True(t, user.EmailValidated)
		assert.False(t, user.PhoneValidated)
		assert.NoError(t, identity.ComparePasswordAndHash("secret123", user.PasswordHash))

		assert.True(t, codes.Validate(ctx, user.ID, identity.PurposePhone, challenge.Code))
	})

	t.Run("username defaults to the email local part", func(t *testing.T) {
		repo, _, flows, _ := setupFlows(t)

		req := validRegisterRequest()
		req.Username = req.Email

		challenge, err := flows.Register(ctx, req)
		require.NoError(t, err)

		user, err := repo.Users().GetByEmail(ctx, req.Email)
		require.NoError(t, err)
		assert.Equal(t, challenge.UserID, user.ID.String())
		assert.Equal(t, "janedoe", user.Username)
	})

	t.Run("invalid payload creates nothing", func(t *testing.T) {
		repo, _, flows, _ := setupFlows(t)

		req := validRegisterRequest()
		req.Email = "not-an-email"

		_, err := flows.Register(ctx, req)
		require.Error(t, err)

		taken, err := repo.Users().IsAnyUsername(ctx, req.Username)
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("password confirmation must match", func(t *testing.T) {
		repo, _, flows, _ := setupFlows(t)

		req := validRegisterRequest()
		req.ConfirmPassword = "different"

		_, err := flows.Register(ctx, req)
		require.Error(t, err)

		taken, err := repo.Users().IsAnyUsername(ctx, req.Username)
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("policy must be accepted", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		req := validRegisterRequest()
		req.AcceptPolicy = false

		_, err := flows.Register(ctx, req)
		assert.ErrorIs(t, err, identity.ErrPolicyNotAccepted)
	})

	t.Run("taken identifiers abort before creation", func(t *testing.T) {
		repo, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		req := validRegisterRequest()
		req.Email = "second@example.com"
		req.Phone = "+12125550199"

		_, err = flows.Register(ctx, req)
		require.Error(t, err)
		assertTextCode(t, err, identity.TextCodeIdentifierTaken)

		taken, err := repo.Users().IsAnyEmail(ctx, "second@example.com")
		require.NoError(t, err)
		assert.False(t, taken)
	})
}

func TestRegisterWithPhone(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		repo, codes, flows, _ := setupFlows(t)

		challenge, err := flows.RegisterWithPhone(ctx, identity.RegisterWithPhoneRequest{
			Phone:        "(212) 555-0160",
			AcceptPolicy: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "+12125550160", challenge.Phone)
		assert.NotEmpty(t, challenge.Code)

		user, err := repo.Users().GetByPhone(ctx, "+12125550160")
		require.NoError(t, err)
		assert.Equal(t, "+12125550160", user.Username)
		assert.Equal(t, "+12125550160"+identity.PlaceholderEmailDomain, user.Email)
		assert.NotEmpty(t, user.PasswordHash)

		assert.True(t, codes.Validate(ctx, user.ID, identity.PurposePhone, challenge.Code))
	})

	t.Run("policy must be accepted", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.RegisterWithPhone(ctx, identity.RegisterWithPhoneRequest{
			Phone: "+12125550161",
		})
		assert.ErrorIs(t, err, identity.ErrPolicyNotAccepted)
	})

	t.Run("taken phone aborts", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		req := identity.RegisterWithPhoneRequest{Phone: "+12125550162", AcceptPolicy: true}

		_, err := flows.RegisterWithPhone(ctx, req)
		require.NoError(t, err)

		_, err = flows.RegisterWithPhone(ctx, req)
		require.Error(t, err)
		assertTextCode(t, err, identity.TextCodeIdentifierTaken)
	})
}

func TestConfirmMobile(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the phone confirmed", func(t *testing.T) {
		repo, _, flows, _ := setupFlows(t)

		challenge, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		result, err := flows.ConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone: challenge.Phone,
			Code:  challenge.Code,
		})
		require.NoError(t, err)
		assert.True(t, result.PhoneConfirmed)
		assert.Empty(t, result.ResetToken)

		user, err := repo.Users().GetByPhone(ctx, challenge.Phone)
		require.NoError(t, err)
		assert.True(t, user.PhoneValidated)
	})

	t.Run("wrong code is rejected", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		challenge, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		_, err = flows.ConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone: challenge.Phone,
			Code:  "000000",
		})
		assert.ErrorIs(t, err, identity.ErrCodeInvalid)
	})

	t.Run("a code confirms exactly once", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		challenge, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		req := identity.ConfirmMobileRequest{Phone: challenge.Phone, Code: challenge.Code}

		_, err = flows.ConfirmMobile(ctx, req)
		require.NoError(t, err)

		_, err = flows.ConfirmMobile(ctx, req)
		assert.ErrorIs(t, err, identity.ErrCodeInvalid)
	})

	t.Run("reset flag trades the code for a reset token", func(t *testing.T) {
		repo, codes, flows, _ := setupFlows(t)

		challenge, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		result, err := flows.ConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone:         challenge.Phone,
			Code:          challenge.Code,
			ResetPassword: true,
		})
		require.NoError(t, err)
		assert.False(t, result.PhoneConfirmed)
		assert.NotEmpty(t, result.ResetToken)

		user, err := repo.Users().GetByPhone(ctx, challenge.Phone)
		require.NoError(t, err)
		assert.False(t, user.PhoneValidated)
		assert.True(t, codes.Validate(ctx, user.ID, identity.PurposePasswordReset, result.ResetToken))
	})

	t.Run("unknown phone", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.ConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone: "+19995550000",
			Code:  "123456",
		})
		assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a token carrying roles and claims", func(t *testing.T) {
		repo, _, flows, tokens := setupFlows(t)
		claimService := identity.NewClaimService(repo)

		challenge, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		user, err := repo.Users().GetByPhone(ctx, challenge.Phone)
		require.NoError(t, err)

		mustCreateRole(t, repo, "admin")
		mustCreateRole(t, repo, "editor")
		require.NoError(t, repo.Roles().AddToRole(ctx, user.ID, "admin"))
		require.NoError(t, repo.Roles().AddToRole(ctx, user.ID, "editor"))
		require.NoError(t, claimService.AddForRole(ctx, "admin", identity.Claim{Type: "permission", Value: "orders:read"}))
		require.NoError(t, claimService.AddForUser(ctx, user.ID, identity.Claim{Type: "region", Value: "us-east"}))

		result, err := flows.Login(ctx, identity.LoginRequest{
			Identifier: "janedoe",
			Password:   "secret123",
		})
		require.NoError(t, err)

		claims, err := tokens.Validate(result.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.UserID())
		assert.Equal(t, []string{"admin", "editor"}, claims.Roles)
		assert.Equal(t, []identity.Claim{
			{Type: "permission", Value: "orders:read"},
			{Type: "region", Value: "us-east"},
		}, claims.Attributes)
	})

	t.Run("any identifier channel works", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		for _, identifier := range []string{"janedoe", "jane.doe@example.com", "(212) 555-0142"} {
			result, err := flows.Login(ctx, identity.LoginRequest{
				Identifier: identifier,
				Password:   "secret123",
			})
			require.NoError(t, err, "identifier %q", identifier)
			assert.NotEmpty(t, result.Token)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		_, err = flows.Login(ctx, identity.LoginRequest{
			Identifier: "janedoe",
			Password:   "wrong_password",
		})
		assert.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Login(ctx, identity.LoginRequest{
			Identifier: "ghost",
			Password:   "whatever123",
		})
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})
}

func TestLoginByPhone(t *testing.T) {
	ctx := context.Background()

	t.Run("code completes the login without a password", func(t *testing.T) {
		repo, _, flows, tokens := setupFlows(t)

		// a phone-registered account never had a caller supplied password,
		// the one-time code is the only factor for this path
		registered, err := flows.RegisterWithPhone(ctx, identity.RegisterWithPhoneRequest{
			Phone:        "+12125550170",
			AcceptPolicy: true,
		})
		require.NoError(t, err)

		challenge, err := flows.LoginByPhone(ctx, identity.LoginByPhoneRequest{
			Phone: "+12125550170",
		})
		require.NoError(t, err)
		assert.Equal(t, registered.UserID, challenge.UserID)
		assert.NotEmpty(t, challenge.Code)

		result, err := flows.LoginConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone: "+12125550170",
			Code:  challenge.Code,
		})
		require.NoError(t, err)

		claims, err := tokens.Validate(result.Token)
		require.NoError(t, err)
		assert.Equal(t, registered.UserID, claims.UserID())

		user, err := repo.Users().GetByPhone(ctx, "+12125550170")
		require.NoError(t, err)
		assert.Equal(t, 0, user.LoginAttempts)
	})

	t.Run("wrong code fails the login", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.RegisterWithPhone(ctx, identity.RegisterWithPhoneRequest{
			Phone:        "+12125550171",
			AcceptPolicy: true,
		})
		require.NoError(t, err)

		_, err = flows.LoginByPhone(ctx, identity.LoginByPhoneRequest{Phone: "+12125550171"})
		require.NoError(t, err)

		_, err = flows.LoginConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone: "+12125550171",
			Code:  "000000",
		})
		assert.ErrorIs(t, err, identity.ErrCodeInvalid)
	})

	t.Run("a login code is single use", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.RegisterWithPhone(ctx, identity.RegisterWithPhoneRequest{
			Phone:        "+12125550172",
			AcceptPolicy: true,
		})
		require.NoError(t, err)

		challenge, err := flows.LoginByPhone(ctx, identity.LoginByPhoneRequest{Phone: "+12125550172"})
		require.NoError(t, err)

		req := identity.ConfirmMobileRequest{Phone: "+12125550172", Code: challenge.Code}

		_, err = flows.LoginConfirmMobile(ctx, req)
		require.NoError(t, err)

		_, err = flows.LoginConfirmMobile(ctx, req)
		assert.ErrorIs(t, err, identity.ErrCodeInvalid)
	})

	t.Run("unknown phone", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.LoginByPhone(ctx, identity.LoginByPhoneRequest{Phone: "+19995550001"})
		assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("full reset round trip over phone", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		challenge, err := flows.ForgotPassword(ctx, identity.ForgotPasswordRequest{
			Phone: "(212) 555-0142",
		})
		require.NoError(t, err)
		assert.True(t, challenge.ResetPassword)
		assert.Equal(t, "+12125550142", challenge.Phone)

		confirmed, err := flows.ConfirmMobile(ctx, identity.ConfirmMobileRequest{
			Phone:         challenge.Phone,
			Code:          challenge.Code,
			ResetPassword: true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, confirmed.ResetToken)

		err = flows.ResetPassword(ctx, identity.ResetPasswordRequest{
			Phone:           challenge.Phone,
			ResetToken:      confirmed.ResetToken,
			NewPassword:     "brand_new_pw",
			ConfirmPassword: "brand_new_pw",
		})
		require.NoError(t, err)

		_, err = flows.Login(ctx, identity.LoginRequest{Identifier: "janedoe", Password: "secret123"})
		assert.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)

		result, err := flows.Login(ctx, identity.LoginRequest{Identifier: "janedoe", Password: "brand_new_pw"})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
	})

	t.Run("email channel resolves when no phone is given", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		challenge, err := flows.ForgotPassword(ctx, identity.ForgotPasswordRequest{
			Email: "jane.doe@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "jane.doe@example.com", challenge.Email)
		assert.True(t, challenge.ResetPassword)
	})

	t.Run("requires an identifier", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.ForgotPassword(ctx, identity.ForgotPasswordRequest{})
		assert.ErrorIs(t, err, identity.ErrMissingIdentifier)
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("old password proves ownership", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		err = flows.ResetPassword(ctx, identity.ResetPasswordRequest{
			Email:           "jane.doe@example.com",
			OldPassword:     "secret123",
			NewPassword:     "rotated_pw_1",
			ConfirmPassword: "rotated_pw_1",
		})
		require.NoError(t, err)

		result, err := flows.Login(ctx, identity.LoginRequest{Identifier: "janedoe", Password: "rotated_pw_1"})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
	})

	t.Run("wrong old password is rejected", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		err = flows.ResetPassword(ctx, identity.ResetPasswordRequest{
			Email:           "jane.doe@example.com",
			OldPassword:     "wrong_password",
			NewPassword:     "rotated_pw_2",
			ConfirmPassword: "rotated_pw_2",
		})
		assert.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)
	})

	t.Run("wrong reset token is rejected", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		_, err := flows.Register(ctx, validRegisterRequest())
		require.NoError(t, err)

		err = flows.ResetPassword(ctx, identity.ResetPasswordRequest{
			Email:           "jane.doe@example.com",
			ResetToken:      "000000",
			NewPassword:     "rotated_pw_3",
			ConfirmPassword: "rotated_pw_3",
		})
		assert.ErrorIs(t, err, identity.ErrCodeInvalid)
	})

	t.Run("confirmation must match", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		err := flows.ResetPassword(ctx, identity.ResetPasswordRequest{
			Email:           "jane.doe@example.com",
			OldPassword:     "secret123",
			NewPassword:     "rotated_pw_4",
			ConfirmPassword: "different_pw",
		})
		assert.Error(t, err)
	})

	t.Run("requires an identifier", func(t *testing.T) {
		_, _, flows, _ := setupFlows(t)

		err := flows.ResetPassword(ctx, identity.ResetPasswordRequest{
			OldPassword:     "secret123",
			NewPassword:     "rotated_pw_5",
			ConfirmPassword: "rotated_pw_5",
		})
		assert.ErrorIs(t, err, identity.ErrMissingIdentifier)
	})
}

func TestRequestChangeCodes(t *testing.T) {
	ctx := context.Background()
	repo, codes, flows, _ := setupFlows(t)

	challenge, err := flows.Register(ctx, validRegisterRequest())
	require.NoError(t, err)

	user, err := repo.Users().GetByPhone(ctx, challenge.Phone)
	require.NoError(t, err)

	t.Run("email change", func(t *testing.T) {
		code, err := flows.RequestEmailChange(ctx, "jane.doe@example.com")
		require.NoError(t, err)
		assert.True(t, codes.Validate(ctx, user.ID, identity.PurposeEmailChange, code))
	})

	t.Run("phone change", func(t *testing.T) {
		code, err := flows.RequestPhoneChange(ctx, "(212) 555-0142")
		require.NoError(t, err)
		assert.True(t, codes.Validate(ctx, user.ID, identity.PurposePhoneChange, code))
	})

	t.Run("unknown subject", func(t *testing.T) {
		_, err := flows.RequestEmailChange(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
	})
}
