package trust

import "github.com/goliatone/go-errors"

const (
	TextCodeRequestConflict      = "auth_request_conflict"
	TextCodeRequestExpired       = "auth_request_expired"
	TextCodeRequestNotApproved   = "auth_request_not_approved"
	TextCodeRequestNotFound      = "auth_request_not_found"
	TextCodeAccessCodeMismatch   = "auth_request_access_denied"
	TextCodeTokenInvalid         = "bound_token_invalid"
	TextCodeTokenExpired         = "bound_token_expired"
	TextCodeTokenKindMismatch    = "bound_token_kind_mismatch"
	TextCodeRegistrationDisabled = "registration_disabled"
	TextCodeSignupDisabled       = "signup_disabled"
	TextCodeOrgUserIDRequired    = "org_user_id_required"
	TextCodeOrgInviteRequired    = "org_invite_token_required"
)

// ErrRequestConflict is returned when a request was already responded to,
// authenticated, or otherwise spent. The first writer wins; everyone else
// gets this.
var ErrRequestConflict = errors.New("authentication request has already been used", errors.CategoryConflict).
	WithTextCode(TextCodeRequestConflict).
	WithCode(errors.CodeConflict)

// ErrRequestExpired is returned when the 15 minute approval window has elapsed.
var ErrRequestExpired = errors.New("authentication request has expired", errors.CategoryConflict).
	WithTextCode(TextCodeRequestExpired).
	WithCode(errors.CodeConflict)

// ErrRequestNotApproved is returned when authenticate is attempted on a
// request that was never approved.
var ErrRequestNotApproved = errors.New("authentication request was not approved", errors.CategoryConflict).
	WithTextCode(TextCodeRequestNotApproved).
	WithCode(errors.CodeConflict)

// ErrRequestNotFound is returned when the request id is unknown.
var ErrRequestNotFound = errors.New("authentication request not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRequestNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccessCodeMismatch is returned on any access code failure. Expired
// requests and wrong codes report the same error so callers learn nothing
// about code validity.
var ErrAccessCodeMismatch = errors.New("authentication request access denied", errors.CategoryAuth).
	WithTextCode(TextCodeAccessCodeMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid covers forged, corrupted, or semantically mismatched bound
// tokens. Authenticity failures collapse into this error so the boundary
// never reveals why a token failed.
var ErrTokenInvalid = errors.New("bound token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a token verified correctly but its
// embedded expiration has passed.
var ErrTokenExpired = errors.New("bound token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenKindMismatch is returned when a token verifies but was protected
// as a different claim kind than the caller expects.
var ErrTokenKindMismatch = errors.New("bound token kind mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeTokenKindMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrSignupDisabled is returned when the signup feature gate is off.
var ErrSignupDisabled = errors.New("User signup is currently disabled.", errors.CategoryAuthz).
	WithTextCode(TextCodeSignupDisabled).
	WithCode(errors.CodeForbidden)

// ErrRegistrationDisabled is the policy gate error for closed registration.
// The message is user facing, keep it verbatim.
var ErrRegistrationDisabled = errors.New("Open registration has been disabled by the system administrator.", errors.CategoryAuth).
	WithTextCode(TextCodeRegistrationDisabled).
	WithCode(errors.CodeForbidden)

// ErrOrgInviteTokenInvalid is the single user facing error for every org
// invite token failure: forged, expired, wrong kind, or bound to a
// different identity. Callers must not be able to tell which.
var ErrOrgInviteTokenInvalid = errors.New("Organization invite token is invalid.", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrEmailVerificationTokenInvalid is the collapsed error for the email
// verification redemption path.
var ErrEmailVerificationTokenInvalid = errors.New("Invalid email verification token.", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrOrgUserIDRequired is returned when an invite token arrives without the
// organization user id that anchors it.
var ErrOrgUserIDRequired = errors.New("Organization invite token cannot be validated without an organization user id.", errors.CategoryValidation).
	WithTextCode(TextCodeOrgUserIDRequired).
	WithCode(errors.CodeBadRequest)

// ErrOrgInviteTokenRequired is returned when an organization user id arrives
// without its invite token.
var ErrOrgInviteTokenRequired = errors.New("Organization user id cannot be provided without an organization invite token.", errors.CategoryValidation).
	WithTextCode(TextCodeOrgInviteRequired).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// errWithMetadata attaches call site metadata to a sentinel without mutating
// it. The sentinel stays in the chain so errors.Is keeps matching.
func errWithMetadata(base *errors.Error, meta map[string]any) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(meta)
}
