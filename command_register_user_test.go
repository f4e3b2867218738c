package trust_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-trust"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type registerFixture struct {
	handler *trust.RegisterUserHandler
	users   *fakeUsers
	mailer  *MockMailer
	events  *MockReferenceEvents
	guard   *guardFixture
}

func newRegisterFixture(t *testing.T, disableRegistration bool) *registerFixture {
	t.Helper()

	users := &fakeUsers{}
	repo := &fakeRepoManager{users: users}
	mailer := new(MockMailer)
	events := new(MockReferenceEvents)
	guard := newGuardFixture(t, disableRegistration)

	handler := trust.NewRegisterUserHandler(repo, guard.guard,
		trust.WithRegisterMailer(mailer),
		trust.WithRegisterReferenceEvents(events),
	)

	return &registerFixture{
		handler: handler,
		users:   users,
		mailer:  mailer,
		events:  events,
		guard:   guard,
	}
}

func TestRegisterUserExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the account and sends the welcome email", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.mailer.On("SendWelcomeEmail", mock.Anything, mock.Anything).Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		var resp *trust.RegisterUserResponse
		err := f.handler.Execute(ctx, trust.RegisterUserMessage{
			Name:     "New User",
			Email:    "new@example.com",
			Password: "long-enough-password",
			OnResponse: func(r *trust.RegisterUserResponse) {
				resp = r
			},
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.User)
		assert.Equal(t, "new@example.com", resp.User.Email)
		assert.NotEqual(t, uuid.Nil, resp.User.ID)
		assert.NotEmpty(t, resp.User.PasswordHash)
		assert.NotEqual(t, "long-enough-password", resp.User.PasswordHash)
		assert.False(t, resp.User.EmailVerified)

		require.Len(t, f.users.registered, 1)
		f.mailer.AssertCalled(t, "SendWelcomeEmail", mock.Anything, mock.Anything)
		f.events.AssertCalled(t, "Raise", mock.Anything, mock.MatchedBy(func(e trust.ReferenceEvent) bool {
			return e.Type == trust.ReferenceEventSignup && e.UserID == resp.User.ID.String()
		}))
	})

	t.Run("trial signups get the trial initiation email", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.mailer.On("SendTrialInitiationEmail", mock.Anything, "trial@example.com").Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		err := f.handler.Execute(ctx, trust.RegisterUserMessage{
			Email:         "trial@example.com",
			Password:      "long-enough-password",
			ReferenceData: `{"initiationPath":"Secrets Manager trial"}`,
		})
		require.NoError(t, err)

		f.mailer.AssertCalled(t, "SendTrialInitiationEmail", mock.Anything, "trial@example.com")
		f.mailer.AssertNotCalled(t, "SendWelcomeEmail", mock.Anything, mock.Anything)
		f.events.AssertCalled(t, "Raise", mock.Anything, mock.MatchedBy(func(e trust.ReferenceEvent) bool {
			return e.SignupInitiationPath == "Secrets Manager trial"
		}))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newRegisterFixture(t, false)

		err := f.handler.Execute(ctx, trust.RegisterUserMessage{
			Email:    "not-an-email",
			Password: "long-enough-password",
		})
		require.Error(t, err)
		assert.Empty(t, f.users.registered)

		err = f.handler.Execute(ctx, trust.RegisterUserMessage{
			Email:    "new@example.com",
			Password: "short",
		})
		require.Error(t, err)
		assert.Empty(t, f.users.registered)
	})

	t.Run("store failure skips mail and events", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.users.registerErr = goerrors.New("duplicate email", goerrors.CategoryConflict)

		err := f.handler.Execute(ctx, trust.RegisterUserMessage{
			Email:    "new@example.com",
			Password: "long-enough-password",
		})
		require.Error(t, err)

		f.mailer.AssertNotCalled(t, "SendWelcomeEmail", mock.Anything, mock.Anything)
		f.events.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything)
	})

	t.Run("cancelled context fails fast", func(t *testing.T) {
		f := newRegisterFixture(t, false)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := f.handler.Execute(cancelled, trust.RegisterUserMessage{
			Email:    "new@example.com",
			Password: "long-enough-password",
		})
		require.Error(t, err)
		assert.Empty(t, f.users.registered)
	})
}

func TestRegisterUserRedeemOrgInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("plain registration when no invite present", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.mailer.On("SendWelcomeEmail", mock.Anything, mock.Anything).Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		err := f.handler.RedeemOrgInvite(ctx, trust.RegisterOrgInviteMessage{
			Email:    "new@example.com",
			Password: "long-enough-password",
		})
		require.NoError(t, err)
		require.Len(t, f.users.registered, 1)
		assert.Empty(t, f.users.registered[0].TwoFactorProviders)
	})

	t.Run("two factor enforcing org pre enrolls email provider", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.mailer.On("SendWelcomeEmail", mock.Anything, mock.Anything).Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		attempt, _ := f.guard.issueInvite(t, "invitee@example.com", true)

		err := f.handler.RedeemOrgInvite(ctx, trust.RegisterOrgInviteMessage{
			Email:              attempt.Email,
			Password:           "long-enough-password",
			InviteToken:        attempt.InviteToken,
			OrganizationUserID: attempt.OrganizationUserID,
		})
		require.NoError(t, err)

		require.Len(t, f.users.registered, 1)
		providers := f.users.registered[0].TwoFactorProviders
		assert.Contains(t, providers, `"enabled":true`)
		assert.Contains(t, providers, "invitee@example.com")
	})

	t.Run("non enforcing org leaves two factor alone", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.mailer.On("SendWelcomeEmail", mock.Anything, mock.Anything).Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		attempt, _ := f.guard.issueInvite(t, "invitee@example.com", false)

		err := f.handler.RedeemOrgInvite(ctx, trust.RegisterOrgInviteMessage{
			Email:              attempt.Email,
			Password:           "long-enough-password",
			InviteToken:        attempt.InviteToken,
			OrganizationUserID: attempt.OrganizationUserID,
		})
		require.NoError(t, err)
		require.Len(t, f.users.registered, 1)
		assert.Empty(t, f.users.registered[0].TwoFactorProviders)
	})

	t.Run("guard rejection stops the registration", func(t *testing.T) {
		f := newRegisterFixture(t, false)

		err := f.handler.RedeemOrgInvite(ctx, trust.RegisterOrgInviteMessage{
			Email:       "new@example.com",
			Password:    "long-enough-password",
			InviteToken: "some-token",
		})
		require.ErrorIs(t, err, trust.ErrOrgUserIDRequired)
		assert.Empty(t, f.users.registered)
	})

	t.Run("closed registration without invite", func(t *testing.T) {
		f := newRegisterFixture(t, true)

		err := f.handler.RedeemOrgInvite(ctx, trust.RegisterOrgInviteMessage{
			Email:    "new@example.com",
			Password: "long-enough-password",
		})
		require.ErrorIs(t, err, trust.ErrRegistrationDisabled)
		assert.Contains(t, err.Error(), "Open registration has been disabled by the system administrator.")
		assert.Empty(t, f.users.registered)
	})

	t.Run("closed registration admits a valid invite", func(t *testing.T) {
		f := newRegisterFixture(t, true)
		f.mailer.On("SendWelcomeEmail", mock.Anything, mock.Anything).Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		attempt, _ := f.guard.issueInvite(t, "invitee@example.com", false)

		err := f.handler.RedeemOrgInvite(ctx, trust.RegisterOrgInviteMessage{
			Email:              attempt.Email,
			Password:           "long-enough-password",
			InviteToken:        attempt.InviteToken,
			OrganizationUserID: attempt.OrganizationUserID,
		})
		require.NoError(t, err)
		require.Len(t, f.users.registered, 1)
	})
}

func TestRegisterUserRedeemEmailVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the email verified and forwards the claim", func(t *testing.T) {
		f := newRegisterFixture(t, false)
		f.mailer.On("SendWelcomeEmail", mock.Anything, mock.Anything).Return(nil)
		f.events.On("Raise", mock.Anything, mock.Anything).Return(nil)

		token, err := f.guard.protector.Protect(trust.EmailVerificationTokenable{
			Email:                  "new@example.com",
			Name:                   "Verified User",
			ReceiveMarketingEmails: true,
		})
		require.NoError(t, err)

		err = f.handler.RedeemEmailVerification(ctx, trust.RegisterEmailVerificationMessage{
			Email:             "new@example.com",
			Password:          "long-enough-password",
			VerificationToken: token,
		})
		require.NoError(t, err)

		require.Len(t, f.users.registered, 1)
		created := f.users.registered[0]
		assert.True(t, created.EmailVerified)
		assert.Equal(t, "Verified User", created.Name)

		f.events.AssertCalled(t, "Raise", mock.Anything, mock.MatchedBy(func(e trust.ReferenceEvent) bool {
			return e.ReceiveMarketingEmails
		}))
	})

	t.Run("requires a verification token", func(t *testing.T) {
		f := newRegisterFixture(t, false)

		err := f.handler.RedeemEmailVerification(ctx, trust.RegisterEmailVerificationMessage{
			Email:    "new@example.com",
			Password: "long-enough-password",
		})
		require.Error(t, err)
		assert.Empty(t, f.users.registered)
	})

	t.Run("rejects a token bound to a different email", func(t *testing.T) {
		f := newRegisterFixture(t, false)

		token, err := f.guard.protector.Protect(trust.EmailVerificationTokenable{Email: "someone@example.com"})
		require.NoError(t, err)

		err = f.handler.RedeemEmailVerification(ctx, trust.RegisterEmailVerificationMessage{
			Email:             "new@example.com",
			Password:          "long-enough-password",
			VerificationToken: token,
		})
		require.ErrorIs(t, err, trust.ErrEmailVerificationTokenInvalid)
		assert.Empty(t, f.users.registered)
	})
}
