package trust

import (
	"crypto/rand"
	"math/big"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const accessCodeLength = 25

const accessCodeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// AuthRequestInput carries the requester supplied fields for a new request.
type AuthRequestInput struct {
	UserID           uuid.UUID       `json:"user_id"`
	OrganizationID   *uuid.UUID      `json:"organization_id,omitempty"`
	Type             AuthRequestType `json:"request_type"`
	DeviceIdentifier string          `json:"device_identifier"`
	DeviceType       DeviceType      `json:"device_type"`
	IPAddress        string          `json:"ip_address"`
	PublicKey        string          `json:"public_key"`
}

// Validate enforces the creation constraints: the ephemeral public key is
// required and device metadata is capped at storage column width.
func (r AuthRequestInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PublicKey, validation.Required),
		validation.Field(&r.DeviceIdentifier, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.IPAddress, validation.Length(0, 50)),
		validation.Field(
			&r.Type,
			validation.Required,
			validation.In(
				AuthRequestLoginWithDevice,
				AuthRequestUnlock,
				AuthRequestAdminApproval,
			),
		),
	)
}

// NewAuthRequest builds a pending request with a fresh id, a secure random
// access code, and all response and authentication fields unset.
func NewAuthRequest(input AuthRequestInput, now time.Time) (*AuthRequest, error) {
	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid authentication request").
			WithCode(goerrors.CodeBadRequest)
	}

	code, err := generateAccessCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate access code")
	}

	return &AuthRequest{
		ID:                      uuid.New(),
		UserID:                  input.UserID,
		OrganizationID:          input.OrganizationID,
		Type:                    input.Type,
		RequestDeviceIdentifier: input.DeviceIdentifier,
		RequestDeviceType:       deviceTypeOrUnknown(input.DeviceType),
		RequestIPAddress:        input.IPAddress,
		AccessCode:              code,
		PublicKey:               input.PublicKey,
		CreationDate:            now.UTC(),
	}, nil
}

// RecordResponse registers the approver's decision. It succeeds at most once
// per request: a spent request always fails with a conflict, including a
// denial racing an expiry.
func (r *AuthRequest) RecordResponse(responseDeviceID uuid.UUID, approved bool, encryptedKey, encryptedMasterPasswordHash string, now time.Time) error {
	if r.IsSpent(now) {
		return errWithMetadata(ErrRequestConflict, map[string]any{
			"request_id": r.ID.String(),
			"status":     r.Status(now),
		})
	}

	responseDate := now.UTC()
	r.ResponseDeviceID = &responseDeviceID
	r.Approved = &approved
	r.ResponseDate = &responseDate

	if approved {
		r.EncryptedKey = encryptedKey
		r.EncryptedMasterPasswordHash = encryptedMasterPasswordHash
	}

	return nil
}

// RecordAuthentication marks the approval as exchanged for a session. Only
// an approved, unexpired, not yet authenticated request qualifies.
func (r *AuthRequest) RecordAuthentication(now time.Time) error {
	if r.AuthenticationDate != nil {
		return errWithMetadata(ErrRequestConflict, map[string]any{
			"request_id": r.ID.String(),
		})
	}

	if r.ResponseDate == nil || r.Approved == nil || !*r.Approved {
		return errWithMetadata(ErrRequestNotApproved, map[string]any{
			"request_id": r.ID.String(),
		})
	}

	if !now.Before(r.ExpirationDate()) {
		return errWithMetadata(ErrRequestExpired, map[string]any{
			"request_id": r.ID.String(),
		})
	}

	authDate := now.UTC()
	r.AuthenticationDate = &authDate

	return nil
}

func generateAccessCode() (string, error) {
	max := big.NewInt(int64(len(accessCodeCharset)))
	code := make([]byte, accessCodeLength)

	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = accessCodeCharset[n.Int64()]
	}

	return string(code), nil
}

func deviceTypeOrUnknown(dt DeviceType) DeviceType {
	switch dt {
	case DeviceTypeAndroid, DeviceTypeIOS, DeviceTypeDesktop, DeviceTypeBrowser, DeviceTypeCLI:
		return dt
	default:
		return DeviceTypeUnknown
	}
}
