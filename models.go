package trust

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthRequestType selects the approval semantics for a request
type AuthRequestType = string

const (
	// AuthRequestLoginWithDevice is a login approval from a trusted device
	AuthRequestLoginWithDevice AuthRequestType = "login-with-device"
	// AuthRequestUnlock is an unlock approval from a trusted device
	AuthRequestUnlock AuthRequestType = "unlock"
	// AuthRequestAdminApproval is an SSO admin approval request
	AuthRequestAdminApproval AuthRequestType = "admin-approval"
)

// DeviceType describes the platform of the requesting device
type DeviceType = string

const (
	DeviceTypeAndroid DeviceType = "android"
	DeviceTypeIOS     DeviceType = "ios"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeBrowser DeviceType = "browser"
	DeviceTypeCLI     DeviceType = "cli"
	DeviceTypeUnknown DeviceType = "unknown"
)

// AuthRequestWindow is the fixed approval window. It is deliberately not
// configurable per request; a short window limits exposure of a leaked
// access code.
const AuthRequestWindow = 15 * time.Minute

// AuthRequestStatus is the derived lifecycle state of a request
type AuthRequestStatus = string

const (
	// AuthRequestPending awaits a decision from the approving device
	AuthRequestPending AuthRequestStatus = "pending"
	// AuthRequestApproved was approved and may still be authenticated
	AuthRequestApproved AuthRequestStatus = "approved"
	// AuthRequestDenied is terminal
	AuthRequestDenied AuthRequestStatus = "denied"
	// AuthRequestExpired is terminal
	AuthRequestExpired AuthRequestStatus = "expired"
	// AuthRequestConsumed means the approval was exchanged for a session
	AuthRequestConsumed AuthRequestStatus = "consumed"
)

// AuthRequest is one round of the cross device approval protocol. A request
// is live until it is responded to, authenticated, or its window elapses;
// after any of those it is spent and never grants approval again.
type AuthRequest struct {
	bun.BaseModel `bun:"table:auth_requests,alias:areq"`

	ID                          uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID                      uuid.UUID       `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	OrganizationID              *uuid.UUID      `bun:"organization_id,nullzero,type:uuid" json:"organization_id,omitempty"`
	Type                        AuthRequestType `bun:"request_type,notnull" json:"request_type,omitempty"`
	RequestDeviceIdentifier     string          `bun:"request_device_identifier,notnull" json:"request_device_identifier,omitempty"`
	RequestDeviceType           DeviceType      `bun:"request_device_type,notnull" json:"request_device_type,omitempty"`
	RequestIPAddress            string          `bun:"request_ip_address,notnull" json:"request_ip_address,omitempty"`
	ResponseDeviceID            *uuid.UUID      `bun:"response_device_id,nullzero,type:uuid" json:"response_device_id,omitempty"`
	AccessCode                  string          `bun:"access_code,notnull" json:"-"`
	PublicKey                   string          `bun:"public_key,notnull" json:"public_key,omitempty"`
	EncryptedKey                string          `bun:"encrypted_key,nullzero" json:"encrypted_key,omitempty"`
	EncryptedMasterPasswordHash string          `bun:"encrypted_master_password_hash,nullzero" json:"encrypted_master_password_hash,omitempty"`
	Approved                    *bool           `bun:"approved,nullzero" json:"approved,omitempty"`
	CreationDate                time.Time       `bun:"creation_date,notnull" json:"creation_date,omitempty"`
	ResponseDate                *time.Time      `bun:"response_date,nullzero" json:"response_date,omitempty"`
	AuthenticationDate          *time.Time      `bun:"authentication_date,nullzero" json:"authentication_date,omitempty"`
}

// ExpirationDate is CreationDate plus the fixed approval window.
func (r *AuthRequest) ExpirationDate() time.Time {
	return r.CreationDate.Add(AuthRequestWindow)
}

// IsSpent reports whether the request can no longer grant approval: it was
// responded to, authenticated, or the window elapsed.
func (r *AuthRequest) IsSpent(now time.Time) bool {
	return r.ResponseDate != nil ||
		r.AuthenticationDate != nil ||
		!now.Before(r.ExpirationDate())
}

// Status derives the lifecycle state from the record fields and now. It
// never mutates the record; expiry is evaluated lazily.
func (r *AuthRequest) Status(now time.Time) AuthRequestStatus {
	if r.AuthenticationDate != nil {
		return AuthRequestConsumed
	}

	if r.ResponseDate != nil {
		if r.Approved != nil && *r.Approved {
			if !now.Before(r.ExpirationDate()) {
				return AuthRequestExpired
			}
			return AuthRequestApproved
		}
		return AuthRequestDenied
	}

	if !now.Before(r.ExpirationDate()) {
		return AuthRequestExpired
	}

	return AuthRequestPending
}

// User is the account created by registration
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name               string     `bun:"name" json:"name,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	EmailVerified      bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"password_hash,omitempty"`
	TwoFactorProviders string     `bun:"two_factor_providers,nullzero" json:"two_factor_providers,omitempty"`
	ReferenceData      string     `bun:"reference_data,nullzero" json:"reference_data,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// TwoFactorProvider is one enabled second factor on an account.
type TwoFactorProvider struct {
	Enabled  bool           `json:"enabled"`
	MetaData map[string]any `json:"metadata,omitempty"`
}

// TwoFactorProviderType identifies a second factor implementation
type TwoFactorProviderType = string

const (
	// TwoFactorEmail sends a one time code over email
	TwoFactorEmail TwoFactorProviderType = "email"
)

// EnrollEmailTwoFactor pre enrolls the account in the email second factor,
// keyed to its own address lower cased.
func (u *User) EnrollEmailTwoFactor() error {
	providers := map[TwoFactorProviderType]TwoFactorProvider{
		TwoFactorEmail: {
			Enabled:  true,
			MetaData: map[string]any{"Email": strings.ToLower(u.Email)},
		},
	}

	serialized, err := json.Marshal(providers)
	if err != nil {
		return err
	}

	u.TwoFactorProviders = string(serialized)
	return nil
}

// OrganizationUserStatus tracks the membership lifecycle
type OrganizationUserStatus = string

const (
	OrganizationUserInvited   OrganizationUserStatus = "invited"
	OrganizationUserAccepted  OrganizationUserStatus = "accepted"
	OrganizationUserConfirmed OrganizationUserStatus = "confirmed"
	OrganizationUserRevoked   OrganizationUserStatus = "revoked"
)

// OrganizationUser is a pending or active organization membership. Invited
// records hold the email the invite was issued to; the user id is filled
// once the invite is accepted.
type OrganizationUser struct {
	bun.BaseModel `bun:"table:organization_users,alias:orgu"`

	ID             uuid.UUID              `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrganizationID uuid.UUID              `bun:"organization_id,notnull,type:uuid" json:"organization_id,omitempty"`
	UserID         *uuid.UUID             `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	Email          string                 `bun:"email,nullzero" json:"email,omitempty"`
	Status         OrganizationUserStatus `bun:"status,notnull" json:"status,omitempty"`
	CreatedAt      *time.Time             `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time             `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// PolicyType identifies an organization policy
type PolicyType = string

const (
	// PolicyTwoFactorAuthentication requires members to have 2FA enabled
	PolicyTwoFactorAuthentication PolicyType = "two-factor-authentication"
	// PolicySingleOrg restricts members to a single organization
	PolicySingleOrg PolicyType = "single-org"
)

// Policy is an organization wide rule
type Policy struct {
	bun.BaseModel `bun:"table:policies,alias:pol"`

	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrganizationID uuid.UUID  `bun:"organization_id,notnull,type:uuid" json:"organization_id,omitempty"`
	Type           PolicyType `bun:"policy_type,notnull" json:"policy_type,omitempty"`
	Enabled        bool       `bun:"enabled" json:"enabled,omitempty"`
}
