package trust_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-trust"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockAuthRequestStore implements trust.AuthRequestStore
type MockAuthRequestStore struct {
	mock.Mock
}

func (m *MockAuthRequestStore) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*trust.AuthRequest, error) {
	args := m.Called(ctx, id)
	var record *trust.AuthRequest
	if v := args.Get(0); v != nil {
		record = v.(*trust.AuthRequest)
	}
	return record, args.Error(1)
}

func (m *MockAuthRequestStore) Create(ctx context.Context, record *trust.AuthRequest, criteria ...repository.InsertCriteria) (*trust.AuthRequest, error) {
	args := m.Called(ctx, record)
	var created *trust.AuthRequest
	if v := args.Get(0); v != nil {
		created = v.(*trust.AuthRequest)
	}
	return created, args.Error(1)
}

func (m *MockAuthRequestStore) Respond(ctx context.Context, record *trust.AuthRequest) (*trust.AuthRequest, error) {
	args := m.Called(ctx, record)
	var updated *trust.AuthRequest
	if v := args.Get(0); v != nil {
		updated = v.(*trust.AuthRequest)
	}
	return updated, args.Error(1)
}

func (m *MockAuthRequestStore) MarkAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) (*trust.AuthRequest, error) {
	args := m.Called(ctx, id, at)
	var updated *trust.AuthRequest
	if v := args.Get(0); v != nil {
		updated = v.(*trust.AuthRequest)
	}
	return updated, args.Error(1)
}

// memoryAuthRequestStore is an in-memory store with the same compare-and-set
// semantics the bun repository provides, used to exercise concurrent
// responses for real.
type memoryAuthRequestStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*trust.AuthRequest
}

func newMemoryAuthRequestStore() *memoryAuthRequestStore {
	return &memoryAuthRequestStore{
		records: map[uuid.UUID]*trust.AuthRequest{},
	}
}

func (s *memoryAuthRequestStore) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*trust.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}

	record, ok := s.records[parsed]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	clone := *record
	return &clone, nil
}

func (s *memoryAuthRequestStore) Create(ctx context.Context, record *trust.AuthRequest, criteria ...repository.InsertCriteria) (*trust.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records[record.ID] = &clone

	out := clone
	return &out, nil
}

func (s *memoryAuthRequestStore) Respond(ctx context.Context, record *trust.AuthRequest) (*trust.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.ID]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if current.ResponseDate != nil || current.AuthenticationDate != nil {
		return nil, trust.ErrRequestConflict
	}

	current.ResponseDeviceID = record.ResponseDeviceID
	current.Approved = record.Approved
	current.EncryptedKey = record.EncryptedKey
	current.EncryptedMasterPasswordHash = record.EncryptedMasterPasswordHash
	current.ResponseDate = record.ResponseDate

	clone := *current
	return &clone, nil
}

func (s *memoryAuthRequestStore) MarkAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) (*trust.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if current.AuthenticationDate != nil ||
		current.ResponseDate == nil ||
		current.Approved == nil || !*current.Approved {
		return nil, trust.ErrRequestConflict
	}

	current.AuthenticationDate = &at

	clone := *current
	return &clone, nil
}

// MockOrganizationUsers implements trust.OrganizationUserStore
type MockOrganizationUsers struct {
	mock.Mock
}

func (m *MockOrganizationUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*trust.OrganizationUser, error) {
	args := m.Called(ctx, id)
	var record *trust.OrganizationUser
	if v := args.Get(0); v != nil {
		record = v.(*trust.OrganizationUser)
	}
	return record, args.Error(1)
}

// MockPolicies implements trust.PolicyStore
type MockPolicies struct {
	mock.Mock
}

func (m *MockPolicies) GetByOrganizationIDType(ctx context.Context, organizationID uuid.UUID, policyType trust.PolicyType) (*trust.Policy, error) {
	args := m.Called(ctx, organizationID, policyType)
	var record *trust.Policy
	if v := args.Get(0); v != nil {
		record = v.(*trust.Policy)
	}
	return record, args.Error(1)
}

// MockMailer implements trust.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendWelcomeEmail(ctx context.Context, user *trust.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockMailer) SendTrialInitiationEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockReferenceEvents implements trust.ReferenceEvents
type MockReferenceEvents struct {
	mock.Mock
}

func (m *MockReferenceEvents) Raise(ctx context.Context, event trust.ReferenceEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fakeUsers stubs the Register path of the wide Users repository interface.
// Embedding the interface keeps the fake small; anything unstubbed panics,
// which is what we want in tests.
type fakeUsers struct {
	trust.Users
	registerErr error
	registered  []*trust.User
	mu          sync.Mutex
}

func (f *fakeUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *trust.User) (*trust.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.registerErr != nil {
		return nil, f.registerErr
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	clone := *user
	f.registered = append(f.registered, &clone)
	return user, nil
}

// fakeRepoManager implements trust.RepositoryManager for command tests. The
// transaction runs against a zero bun.Tx; the fakes below never touch it.
type fakeRepoManager struct {
	trust.RepositoryManager
	users *fakeUsers
	txErr error
}

func (f *fakeRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepoManager) Users() trust.Users {
	return f.users
}
