package trust

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenKind tags the claim payload carried by a bound token. Unprotect
// checks the embedded kind before anything else about the claim is trusted,
// so a token protected as one kind can never be redeemed as another.
type TokenKind string

const (
	// TokenKindOrgUserInvite is an invited organization membership claim
	TokenKindOrgUserInvite TokenKind = "organization-user-invite"
	// TokenKindEmailVerification is a verified email address claim
	TokenKindEmailVerification TokenKind = "registration-email-verification"
)

// Tokenable is a claim payload that can be protected into a bound token.
// Valid binds the claim to the identity redeeming it; any mismatch must
// hard fail the redemption.
type Tokenable interface {
	Kind() TokenKind
	TTL() time.Duration
	Valid(registeringEmail string) bool
}

// OrgUserInviteTTL matches the organization invite expiration window.
const OrgUserInviteTTL = 120 * time.Hour

// EmailVerificationTTL keeps verification links short lived.
const EmailVerificationTTL = 15 * time.Minute

// OrgUserInviteTokenable is the claim behind an organization invite link.
type OrgUserInviteTokenable struct {
	OrganizationUserID uuid.UUID `json:"organization_user_id"`
	Email              string    `json:"email"`
}

// NewOrgUserInviteTokenable builds the claim from the pending membership record.
func NewOrgUserInviteTokenable(orgUser *OrganizationUser) OrgUserInviteTokenable {
	t := OrgUserInviteTokenable{}
	if orgUser != nil {
		t.OrganizationUserID = orgUser.ID
		t.Email = orgUser.Email
	}
	return t
}

func (t OrgUserInviteTokenable) Kind() TokenKind {
	return TokenKindOrgUserInvite
}

func (t OrgUserInviteTokenable) TTL() time.Duration {
	return OrgUserInviteTTL
}

// Valid requires an exact, case insensitive match between the invited email
// and the email registering with the token.
func (t OrgUserInviteTokenable) Valid(registeringEmail string) bool {
	if t.Email == "" || registeringEmail == "" {
		return false
	}
	return strings.EqualFold(t.Email, registeringEmail)
}

// EmailVerificationTokenable is the claim behind a registration email
// verification link.
type EmailVerificationTokenable struct {
	Email                  string `json:"email"`
	Name                   string `json:"name,omitempty"`
	ReceiveMarketingEmails bool   `json:"receive_marketing_emails"`
}

func (t EmailVerificationTokenable) Kind() TokenKind {
	return TokenKindEmailVerification
}

func (t EmailVerificationTokenable) TTL() time.Duration {
	return EmailVerificationTTL
}

// Valid requires the verified email to match the registering email exactly,
// case insensitive.
func (t EmailVerificationTokenable) Valid(registeringEmail string) bool {
	if t.Email == "" || registeringEmail == "" {
		return false
	}
	return strings.EqualFold(t.Email, registeringEmail)
}
