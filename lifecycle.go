package trust

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AuthRequestStore is the storage contract the flow needs. The bun backed
// AuthRequests repository satisfies it; tests substitute a mock. Respond and
// MarkAuthenticated must be atomic against the still-pending check.
type AuthRequestStore interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*AuthRequest, error)
	Create(ctx context.Context, record *AuthRequest, criteria ...repository.InsertCriteria) (*AuthRequest, error)
	Respond(ctx context.Context, record *AuthRequest) (*AuthRequest, error)
	MarkAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) (*AuthRequest, error)
}

var _ AuthRequestStore = AuthRequests(nil)

// AuthRequestSession is the correlation pair returned to the requesting
// device. The access code travels out of band to the approving device.
type AuthRequestSession struct {
	RequestID  uuid.UUID `json:"request_id"`
	AccessCode string    `json:"access_code"`
}

// RespondInput carries the approver's decision.
type RespondInput struct {
	RequestID                   uuid.UUID `json:"request_id"`
	AccessCode                  string    `json:"access_code"`
	ResponseDeviceID            uuid.UUID `json:"response_device_id"`
	Approved                    bool      `json:"approved"`
	EncryptedKey                string    `json:"encrypted_key,omitempty"`
	EncryptedMasterPasswordHash string    `json:"encrypted_master_password_hash,omitempty"`
}

// SessionSeed is the encrypted key material handed back to the requester
// after a successful authenticate. Decryption happens on the device with a
// private key that never leaves it.
type SessionSeed struct {
	EncryptedKey                string `json:"encrypted_key"`
	EncryptedMasterPasswordHash string `json:"encrypted_master_password_hash,omitempty"`
}

// AuthRequestFlow orchestrates the two device approval handshake. It holds
// no state across calls; every operation reads the request row fresh and
// relies on the store's compare-and-set updates for ordering.
type AuthRequestFlow struct {
	store    AuthRequestStore
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// AuthRequestFlowOption customizes flow construction.
type AuthRequestFlowOption func(*AuthRequestFlow)

// WithFlowClock injects a custom clock (useful for tests).
func WithFlowClock(clock func() time.Time) AuthRequestFlowOption {
	return func(f *AuthRequestFlow) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithFlowLogger overrides the default logger.
func WithFlowLogger(logger Logger) AuthRequestFlowOption {
	return func(f *AuthRequestFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowActivitySink attaches an audit sink. Sink failures are logged and
// never block the handshake.
func WithFlowActivitySink(sink ActivitySink) AuthRequestFlowOption {
	return func(f *AuthRequestFlow) {
		f.activity = normalizeActivitySink(sink)
	}
}

// NewAuthRequestFlow creates the flow over the given store.
func NewAuthRequestFlow(store AuthRequestStore, opts ...AuthRequestFlowOption) *AuthRequestFlow {
	f := &AuthRequestFlow{
		store:    store,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f
}

// Initiate persists a new pending request and returns the correlation pair.
// The access code must be displayed out of band on the approving device so
// the user can compare it before approving.
func (f *AuthRequestFlow) Initiate(ctx context.Context, input AuthRequestInput) (*AuthRequestSession, error) {
	record, err := NewAuthRequest(input, f.now())
	if err != nil {
		return nil, err
	}

	created, err := f.store.Create(ctx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist authentication request")
	}

	f.logger.Debug("auth request initiated request=%s user=%s device=%s",
		created.ID, created.UserID, created.RequestDeviceIdentifier)

	f.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRequestInitiated,
		UserID:     created.UserID.String(),
		RequestID:  created.ID.String(),
		OccurredAt: created.CreationDate,
		Metadata: map[string]any{
			"device_identifier": created.RequestDeviceIdentifier,
			"request_type":      string(created.Type),
		},
	})

	return &AuthRequestSession{
		RequestID:  created.ID,
		AccessCode: created.AccessCode,
	}, nil
}

// Poll reports the current status without mutating anything. Callers are
// expected to poll with backoff; push delivery lives outside this package.
func (f *AuthRequestFlow) Poll(ctx context.Context, requestID uuid.UUID) (AuthRequestStatus, error) {
	record, err := f.getRequest(ctx, requestID)
	if err != nil {
		return "", err
	}

	return record.Status(f.now()), nil
}

// Respond commits the approver's decision. The presented access code must
// match the one issued at initiate; a mismatch and an expired request fail
// the same way so the caller learns nothing about code validity. Concurrent
// responses are linearized by the store: exactly one succeeds.
func (f *AuthRequestFlow) Respond(ctx context.Context, input RespondInput) (*AuthRequest, error) {
	record, err := f.getRequest(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(record.AccessCode), []byte(input.AccessCode)) != 1 {
		return nil, errWithMetadata(ErrAccessCodeMismatch, map[string]any{
			"request_id": input.RequestID.String(),
		})
	}

	now := f.now()
	if err := record.RecordResponse(
		input.ResponseDeviceID,
		input.Approved,
		input.EncryptedKey,
		input.EncryptedMasterPasswordHash,
		now,
	); err != nil {
		return nil, err
	}

	updated, err := f.store.Respond(ctx, record)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("auth request responded request=%s approved=%v", updated.ID, input.Approved)

	eventType := ActivityEventRequestDenied
	if input.Approved {
		eventType = ActivityEventRequestApproved
	}
	f.recordActivity(ctx, ActivityEvent{
		EventType:  eventType,
		UserID:     updated.UserID.String(),
		RequestID:  updated.ID.String(),
		OccurredAt: now,
	})

	return updated, nil
}

// Authenticate consumes an approval and returns the encrypted key material.
// A request authenticates at most once.
func (f *AuthRequestFlow) Authenticate(ctx context.Context, requestID uuid.UUID) (*SessionSeed, error) {
	record, err := f.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := f.now()
	if err := record.RecordAuthentication(now); err != nil {
		return nil, err
	}

	updated, err := f.store.MarkAuthenticated(ctx, record.ID, *record.AuthenticationDate)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("auth request consumed request=%s user=%s", updated.ID, updated.UserID)

	f.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRequestAuthenticated,
		UserID:     updated.UserID.String(),
		RequestID:  updated.ID.String(),
		OccurredAt: now,
	})

	return &SessionSeed{
		EncryptedKey:                updated.EncryptedKey,
		EncryptedMasterPasswordHash: updated.EncryptedMasterPasswordHash,
	}, nil
}

func (f *AuthRequestFlow) recordActivity(ctx context.Context, event ActivityEvent) {
	if err := f.activity.Record(ctx, event); err != nil {
		f.logger.Error("failed to record activity event %s: %v", event.EventType, err)
	}
}

func (f *AuthRequestFlow) getRequest(ctx context.Context, requestID uuid.UUID) (*AuthRequest, error) {
	record, err := f.store.GetByID(ctx, requestID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, errWithMetadata(ErrRequestNotFound, map[string]any{
				"request_id": requestID.String(),
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load authentication request")
	}

	return record, nil
}
