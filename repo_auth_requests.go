package trust

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RespondAuthRequestSQL commits an approver decision only while the request
// is still pending. The guard on response_date/authentication_date is what
// linearizes concurrent responses: first writer wins, everyone else updates
// zero rows.
var RespondAuthRequestSQL = `UPDATE "auth_requests" AS "areq"
SET
	"response_device_id" = ?,
	"approved" = ?,
	"encrypted_key" = ?,
	"encrypted_master_password_hash" = ?,
	"response_date" = ?
WHERE
	"areq"."id" = ?
AND "areq"."response_date" IS NULL
AND "areq"."authentication_date" IS NULL
RETURNING *;`

// AuthenticateAuthRequestSQL consumes an approval exactly once.
var AuthenticateAuthRequestSQL = `UPDATE "auth_requests" AS "areq"
SET
	"authentication_date" = ?
WHERE
	"areq"."id" = ?
AND "areq"."authentication_date" IS NULL
AND "areq"."response_date" IS NOT NULL
AND "areq"."approved" = TRUE
RETURNING *;`

type AuthRequests interface {
	repository.Repository[*AuthRequest]

	Respond(ctx context.Context, record *AuthRequest) (*AuthRequest, error)
	RespondTx(ctx context.Context, tx bun.IDB, record *AuthRequest) (*AuthRequest, error)
	MarkAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) (*AuthRequest, error)
	MarkAuthenticatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*AuthRequest, error)
}

type authRequests struct {
	repository.Repository[*AuthRequest]
	db *bun.DB
}

var _ AuthRequests = (*authRequests)(nil)

func NewAuthRequestsRepository(db *bun.DB) AuthRequests {
	repo := repository.NewRepository[*AuthRequest](db, repository.ModelHandlers[*AuthRequest]{
		NewRecord: func() *AuthRequest { return &AuthRequest{} },
		GetID: func(r *AuthRequest) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *AuthRequest, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &authRequests{
		Repository: repo,
		db:         db,
	}
}

func (a *authRequests) Respond(ctx context.Context, record *AuthRequest) (*AuthRequest, error) {
	return a.RespondTx(ctx, a.db, record)
}

// RespondTx persists the response fields set by RecordResponse. A spent row
// is reported as ErrRequestConflict; the caller already lost the race.
func (a *authRequests) RespondTx(ctx context.Context, tx bun.IDB, record *AuthRequest) (*AuthRequest, error) {
	res, err := a.Repository.RawTx(ctx, tx, RespondAuthRequestSQL,
		record.ResponseDeviceID,
		record.Approved,
		record.EncryptedKey,
		record.EncryptedMasterPasswordHash,
		record.ResponseDate,
		record.ID.String(),
	)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, errWithMetadata(ErrRequestConflict, map[string]any{
			"request_id": record.ID.String(),
		})
	}

	return res[0], nil
}

func (a *authRequests) MarkAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) (*AuthRequest, error) {
	return a.MarkAuthenticatedTx(ctx, a.db, id, at)
}

func (a *authRequests) MarkAuthenticatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*AuthRequest, error) {
	res, err := a.Repository.RawTx(ctx, tx, AuthenticateAuthRequestSQL, at, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, errWithMetadata(ErrRequestConflict, map[string]any{
			"request_id": id.String(),
		})
	}

	return res[0], nil
}
