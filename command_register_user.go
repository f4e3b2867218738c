package trust

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// trialInitiationPath marks signups that started from a trial funnel; they
// get the trial initiation email instead of the welcome email.
const trialInitiationPath = "Secrets Manager trial"

// RegisterUserResponse reports the outcome of a registration command.
type RegisterUserResponse struct {
	User    *User
	Success bool
}

// RegisterUserMessage is the plain registration path, no token involved.
type RegisterUserMessage struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	ReferenceData string `json:"reference_data,omitempty"`
	UseHashid     bool
	OnResponse    func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate enforces the minimal account shape.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
	)
}

// RegisterOrgInviteMessage registers a user who may carry an organization
// invite. The redemption guard decides whether the pair is acceptable under
// the current registration policy.
type RegisterOrgInviteMessage struct {
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Password           string     `json:"password"`
	ReferenceData      string     `json:"reference_data,omitempty"`
	InviteToken        string     `json:"invite_token,omitempty"`
	OrganizationUserID *uuid.UUID `json:"organization_user_id,omitempty"`
	UseHashid          bool
	OnResponse         func(resp *RegisterUserResponse)
}

func (e RegisterOrgInviteMessage) Type() string { return "user.register_org_invite" }

func (e RegisterOrgInviteMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
	)
}

// RegisterEmailVerificationMessage registers a user who already proved
// ownership of the email through a verification token.
type RegisterEmailVerificationMessage struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	VerificationToken string `json:"verification_token"`
	ReferenceData     string `json:"reference_data,omitempty"`
	UseHashid         bool
	OnResponse        func(resp *RegisterUserResponse)
}

func (e RegisterEmailVerificationMessage) Type() string { return "user.register_email_verification" }

func (e RegisterEmailVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.VerificationToken, validation.Required),
	)
}

// RegisterUserHandler creates accounts for all three registration paths.
type RegisterUserHandler struct {
	repo        RepositoryManager
	guard       *RedemptionGuard
	mailer      Mailer
	events      ReferenceEvents
	logger      Logger
	featureGate gate.FeatureGate
}

// WithFeatureGate attaches a signup feature gate checked before any
// registration work happens.
func (h *RegisterUserHandler) WithFeatureGate(featureGate gate.FeatureGate) *RegisterUserHandler {
	h.featureGate = featureGate
	return h
}

// RegisterUserHandlerOption customizes handler construction.
type RegisterUserHandlerOption func(*RegisterUserHandler)

// WithRegisterMailer sets the outbound mail collaborator.
func WithRegisterMailer(mailer Mailer) RegisterUserHandlerOption {
	return func(h *RegisterUserHandler) {
		h.mailer = normalizeMailer(mailer)
	}
}

// WithRegisterReferenceEvents sets the telemetry sink.
func WithRegisterReferenceEvents(events ReferenceEvents) RegisterUserHandlerOption {
	return func(h *RegisterUserHandler) {
		h.events = normalizeReferenceEvents(events)
	}
}

// WithRegisterLogger overrides the default logger.
func WithRegisterLogger(logger Logger) RegisterUserHandlerOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewRegisterUserHandler wires the handler to its collaborators.
func NewRegisterUserHandler(repo RepositoryManager, guard *RedemptionGuard, opts ...RegisterUserHandlerOption) *RegisterUserHandler {
	h := &RegisterUserHandler{
		repo:   repo,
		guard:  guard,
		mailer: noopMailer{},
		events: noopReferenceEvents{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

// Execute runs the plain registration path.
func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
	}

	if err := requireSignupGate(ctx, h.featureGate); err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration").
			WithCode(goerrors.CodeBadRequest)
	}

	user := &User{
		Name:          event.Name,
		Email:         event.Email,
		ReferenceData: event.ReferenceData,
	}

	return h.createAccount(ctx, user, event.Password, event.UseHashid, false, event.OnResponse)
}

// RedeemOrgInvite registers a user with an optional organization invite.
// When the organization enforces two factor authentication the account is
// pre enrolled in the email provider before it is created.
func (h *RegisterUserHandler) RedeemOrgInvite(ctx context.Context, event RegisterOrgInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
	}

	if err := requireSignupGate(ctx, h.featureGate); err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration").
			WithCode(goerrors.CodeBadRequest)
	}

	redemption, err := h.guard.RedeemOrgInvite(ctx, OrgInviteAttempt{
		Email:              event.Email,
		InviteToken:        event.InviteToken,
		OrganizationUserID: event.OrganizationUserID,
	})
	if err != nil {
		return err
	}

	user := &User{
		Name:          event.Name,
		Email:         event.Email,
		ReferenceData: event.ReferenceData,
	}

	if redemption != nil && redemption.EnforcesTwoFactor {
		if err := user.EnrollEmailTwoFactor(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to pre enroll email two factor")
		}
	}

	return h.createAccount(ctx, user, event.Password, event.UseHashid, false, event.OnResponse)
}

// RedeemEmailVerification registers a user through an email verification
// token; the resulting account's email is marked verified.
func (h *RegisterUserHandler) RedeemEmailVerification(ctx context.Context, event RegisterEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
	}

	if err := requireSignupGate(ctx, h.featureGate); err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration").
			WithCode(goerrors.CodeBadRequest)
	}

	claim, err := h.guard.RedeemEmailVerification(ctx, event.VerificationToken, event.Email)
	if err != nil {
		return err
	}

	user := &User{
		Name:          claim.Name,
		Email:         event.Email,
		EmailVerified: true,
		ReferenceData: event.ReferenceData,
	}

	return h.createAccount(ctx, user, event.Password, event.UseHashid, claim.ReceiveMarketingEmails, event.OnResponse)
}

func (h *RegisterUserHandler) createAccount(ctx context.Context, user *User, password string, useHashid, receiveMarketingEmails bool, onResponse func(*RegisterUserResponse)) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		if useHashid {
			if id, err := hashid.NewUUID(user.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.finishRegistration(ctx, user, receiveMarketingEmails)

	if onResponse != nil {
		onResponse(&RegisterUserResponse{User: user, Success: true})
	}

	return nil
}

// finishRegistration sends the signup mail and raises the signup reference
// event. Both are best effort; the account already exists.
func (h *RegisterUserHandler) finishRegistration(ctx context.Context, user *User, receiveMarketingEmails bool) {
	initiationPath := signupInitiationPath(user.ReferenceData)

	if strings.Contains(initiationPath, trialInitiationPath) {
		if err := h.mailer.SendTrialInitiationEmail(ctx, user.Email); err != nil {
			h.logger.Error("failed to send trial initiation email: %v", err)
		}
	} else {
		if err := h.mailer.SendWelcomeEmail(ctx, user); err != nil {
			h.logger.Error("failed to send welcome email: %v", err)
		}
	}

	if err := h.events.Raise(ctx, ReferenceEvent{
		Type:                   ReferenceEventSignup,
		UserID:                 user.ID.String(),
		SignupInitiationPath:   initiationPath,
		ReceiveMarketingEmails: receiveMarketingEmails,
	}); err != nil {
		h.logger.Error("failed to raise signup event: %v", err)
	}
}

// signupInitiationPath extracts the initiation path from the signup
// reference data blob, if present.
func signupInitiationPath(referenceData string) string {
	if referenceData == "" {
		return ""
	}

	var data struct {
		InitiationPath string `json:"initiationPath"`
	}

	if err := json.Unmarshal([]byte(referenceData), &data); err != nil {
		return ""
	}

	return data.InitiationPath
}
