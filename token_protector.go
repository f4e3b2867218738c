package trust

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenProtector turns Tokenable claims into opaque, signed, expiring bound
// tokens and verifies them back. The signing key is process wide, read only
// state; it must never be logged or surfaced through any interface.
type TokenProtector struct {
	signingKey []byte
	issuer     string
	logger     Logger
	now        func() time.Time
}

// TokenProtectorOption customizes protector construction.
type TokenProtectorOption func(*TokenProtector)

// WithProtectorClock injects a custom clock (useful for tests).
func WithProtectorClock(clock func() time.Time) TokenProtectorOption {
	return func(p *TokenProtector) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithProtectorLogger overrides the default logger.
func WithProtectorLogger(logger Logger) TokenProtectorOption {
	return func(p *TokenProtector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewTokenProtector creates a protector bound to a signing key.
func NewTokenProtector(signingKey []byte, issuer string, opts ...TokenProtectorOption) *TokenProtector {
	p := &TokenProtector{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// boundTokenClaims is the wire shape of a bound token: registered claims for
// issuance and expiry, the kind tag, and the serialized claim payload.
type boundTokenClaims struct {
	jwt.RegisteredClaims
	TokenKind TokenKind       `json:"knd"`
	Payload   json.RawMessage `json:"payload"`
}

// Protect serializes and signs a Tokenable. Every call mints a fresh token
// id, so protecting the same claim twice yields different strings.
func (p *TokenProtector) Protect(tokenable Tokenable) (string, error) {
	if tokenable == nil {
		return "", goerrors.New("tokenable must not be nil", goerrors.CategoryInternal)
	}

	payload, err := json.Marshal(tokenable)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize token payload")
	}

	now := p.now()
	claims := &boundTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenable.TTL())),
		},
		TokenKind: tokenable.Kind(),
		Payload:   payload,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(p.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign bound token")
	}

	return signed, nil
}

// UnprotectOrgInvite verifies and returns an organization invite claim.
func (p *TokenProtector) UnprotectOrgInvite(token string) (OrgUserInviteTokenable, error) {
	var claim OrgUserInviteTokenable
	if err := p.unprotect(token, TokenKindOrgUserInvite, &claim); err != nil {
		return OrgUserInviteTokenable{}, err
	}
	return claim, nil
}

// UnprotectEmailVerification verifies and returns an email verification claim.
func (p *TokenProtector) UnprotectEmailVerification(token string) (EmailVerificationTokenable, error) {
	var claim EmailVerificationTokenable
	if err := p.unprotect(token, TokenKindEmailVerification, &claim); err != nil {
		return EmailVerificationTokenable{}, err
	}
	return claim, nil
}

// unprotect verifies authenticity first, then the kind tag, then expiry,
// and only then deserializes the payload. Any tampering, truncation, or
// wrong key fails closed before the claim is looked at.
func (p *TokenProtector) unprotect(token string, expected TokenKind, out any) error {
	parsed, err := jwt.ParseWithClaims(token, &boundTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.signingKey, nil
	}, jwt.WithoutClaimsValidation())

	if err != nil {
		p.logger.Debug("bound token rejected: %v", err)
		return ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*boundTokenClaims)
	if !ok || !parsed.Valid {
		return ErrTokenInvalid
	}

	if claims.TokenKind != expected {
		return errWithMetadata(ErrTokenKindMismatch, map[string]any{
			"expected": string(expected),
		})
	}

	if claims.ExpiresAt == nil || !p.now().Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}

	if p.issuer != "" && claims.Issuer != p.issuer {
		return ErrTokenInvalid
	}

	if err := json.Unmarshal(claims.Payload, out); err != nil {
		return ErrTokenInvalid
	}

	return nil
}
