package trust

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// OrganizationUserStore is the membership lookup the guard needs.
type OrganizationUserStore interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*OrganizationUser, error)
}

// PolicyStore resolves organization policies by type.
type PolicyStore interface {
	GetByOrganizationIDType(ctx context.Context, organizationID uuid.UUID, policyType PolicyType) (*Policy, error)
}

// OrgInviteAttempt is a registration attempt that may carry an invite. Both
// halves of the invite, token and organization user id, travel together or
// not at all.
type OrgInviteAttempt struct {
	Email              string     `json:"email"`
	InviteToken        string     `json:"invite_token,omitempty"`
	OrganizationUserID *uuid.UUID `json:"organization_user_id,omitempty"`
}

func (a OrgInviteAttempt) hasToken() bool {
	return a.InviteToken != ""
}

func (a OrgInviteAttempt) hasOrgUserID() bool {
	return a.OrganizationUserID != nil && *a.OrganizationUserID != uuid.Nil
}

// OrgInviteRedemption is the outcome of a successful invite validation. When
// the organization enforces two factor authentication the registration flow
// pre enrolls the account in the email provider before creating it.
type OrgInviteRedemption struct {
	Claim             OrgUserInviteTokenable
	OrganizationUser  *OrganizationUser
	EnforcesTwoFactor bool
}

// RedemptionGuard runs the identity binding checks a consumer performs
// before trusting a redeemed token.
type RedemptionGuard struct {
	protector *TokenProtector
	orgUsers  OrganizationUserStore
	policies  PolicyStore
	settings  Settings
	logger    Logger
}

// RedemptionGuardOption customizes guard construction.
type RedemptionGuardOption func(*RedemptionGuard)

// WithGuardLogger overrides the default logger.
func WithGuardLogger(logger Logger) RedemptionGuardOption {
	return func(g *RedemptionGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRedemptionGuard wires the guard to its collaborators.
func NewRedemptionGuard(protector *TokenProtector, orgUsers OrganizationUserStore, policies PolicyStore, settings Settings, opts ...RedemptionGuardOption) *RedemptionGuard {
	g := &RedemptionGuard{
		protector: protector,
		orgUsers:  orgUsers,
		policies:  policies,
		settings:  settings,
		logger:    defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// RedeemOrgInvite enforces the registration gate in order: closed
// registration demands a fully valid invite, open registration rejects a
// partial invite with a precise validation error, and a complete invite runs
// the unprotect, kind, expiry, and identity binding chain. Every token
// failure under open registration collapses into the same invalid token
// error; under closed registration into the registration disabled error.
func (g *RedemptionGuard) RedeemOrgInvite(ctx context.Context, attempt OrgInviteAttempt) (*OrgInviteRedemption, error) {
	if g.settings.GetDisableUserRegistration() {
		redemption, err := g.validateInvite(ctx, attempt)
		if err != nil {
			g.logger.Debug("closed registration invite rejected: %v", err)
			return nil, ErrRegistrationDisabled
		}
		return redemption, nil
	}

	switch {
	case !attempt.hasToken() && !attempt.hasOrgUserID():
		return nil, nil
	case attempt.hasToken() && !attempt.hasOrgUserID():
		return nil, ErrOrgUserIDRequired
	case !attempt.hasToken() && attempt.hasOrgUserID():
		return nil, ErrOrgInviteTokenRequired
	}

	redemption, err := g.validateInvite(ctx, attempt)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryInternal {
			return nil, err
		}
		g.logger.Debug("org invite rejected: %v", err)
		return nil, ErrOrgInviteTokenInvalid
	}

	return redemption, nil
}

// RedeemEmailVerification validates an email verification token against the
// registering email. All failures collapse into the same error.
func (g *RedemptionGuard) RedeemEmailVerification(ctx context.Context, token, registeringEmail string) (*EmailVerificationTokenable, error) {
	claim, err := g.protector.UnprotectEmailVerification(token)
	if err != nil {
		g.logger.Debug("email verification token rejected: %v", err)
		return nil, ErrEmailVerificationTokenInvalid
	}

	if !claim.Valid(registeringEmail) {
		return nil, ErrEmailVerificationTokenInvalid
	}

	return &claim, nil
}

func (g *RedemptionGuard) validateInvite(ctx context.Context, attempt OrgInviteAttempt) (*OrgInviteRedemption, error) {
	if !attempt.hasToken() || !attempt.hasOrgUserID() {
		return nil, ErrOrgInviteTokenInvalid
	}

	claim, err := g.protector.UnprotectOrgInvite(attempt.InviteToken)
	if err != nil {
		return nil, err
	}

	if !claim.Valid(attempt.Email) {
		return nil, ErrOrgInviteTokenInvalid
	}

	if claim.OrganizationUserID != *attempt.OrganizationUserID {
		return nil, ErrOrgInviteTokenInvalid
	}

	orgUser, err := g.orgUsers.GetByID(ctx, attempt.OrganizationUserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrOrgInviteTokenInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load organization user")
	}

	enforces, err := g.enforcesTwoFactor(ctx, orgUser.OrganizationID)
	if err != nil {
		return nil, err
	}

	return &OrgInviteRedemption{
		Claim:             claim,
		OrganizationUser:  orgUser,
		EnforcesTwoFactor: enforces,
	}, nil
}

func (g *RedemptionGuard) enforcesTwoFactor(ctx context.Context, organizationID uuid.UUID) (bool, error) {
	policy, err := g.policies.GetByOrganizationIDType(ctx, organizationID, PolicyTwoFactorAuthentication)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load two factor policy")
	}

	return policy != nil && policy.Enabled, nil
}
