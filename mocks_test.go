package dualauth_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	dualauth "github.com/goliatone/go-dualauth"
)

// MockLogger implements dualauth.Logger for expectation based tests
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// testLogger records log lines without asserting on them
type testLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *testLogger) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+format+" "+fmt.Sprint(args...))
}

func (l *testLogger) Debug(format string, args ...any) { l.log("DBG", format, args...) }
func (l *testLogger) Info(format string, args ...any)  { l.log("INF", format, args...) }
func (l *testLogger) Warn(format string, args ...any)  { l.log("WRN", format, args...) }
func (l *testLogger) Error(format string, args ...any) { l.log("ERR", format, args...) }

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if strings.Contains(entry, substr) {
			return true
		}
	}
	return false
}

// capturingSink collects activity events
type capturingSink struct {
	mu     sync.Mutex
	events []dualauth.ActivityEvent
}

func (s *capturingSink) Record(_ context.Context, event dualauth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) eventsOfType(eventType dualauth.ActivityEventType) []dualauth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dualauth.ActivityEvent
	for _, event := range s.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

// testConfig implements dualauth.Config
type testConfig struct {
	signingKey   string
	issuer       string
	audience     []string
	refreshHours int
	accessHours  int
}

func (c testConfig) GetSigningKey() string          { return c.signingKey }
func (c testConfig) GetIssuer() string              { return c.issuer }
func (c testConfig) GetAudience() []string          { return c.audience }
func (c testConfig) GetRefreshTokenExpiration() int { return c.refreshHours }
func (c testConfig) GetAccessTokenExpiration() int  { return c.accessHours }

func newTestConfig() testConfig {
	return testConfig{
		signingKey: "test-signing-key",
		issuer:     "test-issuer",
		audience:   []string{"test-audience"},
	}
}

// fakeTokenStore is an in memory dualauth.TokenStore
type fakeTokenStore struct {
	mu          sync.Mutex
	outstanding map[string]*dualauth.OutstandingToken
	blacklisted map[string]time.Time
	failWith    error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		outstanding: map[string]*dualauth.OutstandingToken{},
		blacklisted: map[string]time.Time{},
	}
}

func (s *fakeTokenStore) CreateOutstanding(_ context.Context, record *dualauth.OutstandingToken) (*dualauth.OutstandingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.outstanding[record.JTI] = record
	return record, nil
}

func (s *fakeTokenStore) GetOutstandingByJTI(_ context.Context, jti string) (*dualauth.OutstandingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outstanding[jti]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return record, nil
}

func (s *fakeTokenStore) ListOutstandingByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]*dualauth.OutstandingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*dualauth.OutstandingToken
	for _, record := range s.outstanding {
		if record.UserID != userID {
			continue
		}
		if record.ExpiresAt != nil && !record.ExpiresAt.After(now) {
			continue
		}
		if _, revoked := s.blacklisted[record.JTI]; revoked {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *fakeTokenStore) Blacklist(_ context.Context, jti string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.blacklisted[jti]; ok {
		return dualauth.ErrAlreadyBlacklisted
	}
	s.blacklisted[jti] = at
	return nil
}

func (s *fakeTokenStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	_, ok := s.blacklisted[jti]
	return ok, nil
}

// fakeUserStore is an in memory dualauth.UserStore
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*dualauth.User
}

func newFakeUserStore(users ...*dualauth.User) *fakeUserStore {
	s := &fakeUserStore{users: map[uuid.UUID]*dualauth.User{}}
	for _, user := range users {
		s.users[user.ID] = user
	}
	return s
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*dualauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return user, nil
}

func (s *fakeUserStore) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// fakePolicyStore is an in memory dualauth.PolicyStore
type fakePolicyStore struct {
	mu       sync.Mutex
	policies map[uuid.UUID]*dualauth.AuthPolicy
	members  map[uuid.UUID]map[uuid.UUID]dualauth.UserRole
	creates  int
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{
		policies: map[uuid.UUID]*dualauth.AuthPolicy{},
		members:  map[uuid.UUID]map[uuid.UUID]dualauth.UserRole{},
	}
}

func (s *fakePolicyStore) addMember(orgID, userID uuid.UUID, role dualauth.UserRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[orgID] == nil {
		s.members[orgID] = map[uuid.UUID]dualauth.UserRole{}
	}
	s.members[orgID][userID] = role
}

func (s *fakePolicyStore) GetByOrganization(_ context.Context, orgID uuid.UUID) (*dualauth.AuthPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[orgID]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return policy, nil
}

func (s *fakePolicyStore) Create(_ context.Context, policy *dualauth.AuthPolicy) (*dualauth.AuthPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if existing, ok := s.policies[policy.OrganizationID]; ok {
		return existing, nil
	}
	s.policies[policy.OrganizationID] = policy
	return policy, nil
}

func (s *fakePolicyStore) CreateTx(ctx context.Context, _ bun.IDB, policy *dualauth.AuthPolicy) (*dualauth.AuthPolicy, error) {
	return s.Create(ctx, policy)
}

func (s *fakePolicyStore) Update(_ context.Context, policy *dualauth.AuthPolicy) (*dualauth.AuthPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[policy.OrganizationID]; !ok {
		return nil, repository.NewRecordNotFound()
	}
	s.policies[policy.OrganizationID] = policy
	return policy, nil
}

func (s *fakePolicyStore) IsMember(_ context.Context, orgID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[orgID][userID]
	return ok, nil
}

func (s *fakePolicyStore) MemberRole(_ context.Context, orgID, userID uuid.UUID) (dualauth.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.members[orgID][userID]
	if !ok {
		return "", repository.NewRecordNotFound()
	}
	return role, nil
}

// fakeLegacyStore is an in memory dualauth.LegacyTokenStore
type fakeLegacyStore struct {
	mu      sync.Mutex
	records map[string]*dualauth.LegacyToken
}

func newFakeLegacyStore() *fakeLegacyStore {
	return &fakeLegacyStore{records: map[string]*dualauth.LegacyToken{}}
}

func (s *fakeLegacyStore) Create(_ context.Context, record *dualauth.LegacyToken) (*dualauth.LegacyToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Digest] = record
	return record, nil
}

func (s *fakeLegacyStore) GetByDigest(_ context.Context, digest string) (*dualauth.LegacyToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[digest]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return record, nil
}

func (s *fakeLegacyStore) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			record.LastUsedAt = &at
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

// fakeUsers is an in memory dualauth.Users
type fakeUsers struct {
	*fakeUserStore
}

var _ dualauth.Users = (*fakeUsers)(nil)

func (u *fakeUsers) GetByIDTx(ctx context.Context, _ bun.IDB, id uuid.UUID) (*dualauth.User, error) {
	return u.GetByID(ctx, id)
}

func (u *fakeUsers) GetOrCreate(_ context.Context, record *dualauth.User) (*dualauth.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.users[record.ID]; ok {
		return existing, nil
	}
	u.users[record.ID] = record
	return record, nil
}

func (u *fakeUsers) GetOrCreateTx(ctx context.Context, _ bun.IDB, record *dualauth.User) (*dualauth.User, error) {
	return u.GetOrCreate(ctx, record)
}

// fakeRepoManager is an in memory dualauth.RepositoryManager
type fakeRepoManager struct {
	users *fakeUsers
}

var _ dualauth.RepositoryManager = (*fakeRepoManager)(nil)

func newFakeRepoManager(seed ...*dualauth.User) *fakeRepoManager {
	return &fakeRepoManager{
		users: &fakeUsers{fakeUserStore: newFakeUserStore(seed...)},
	}
}

func (m *fakeRepoManager) Validate() error { return nil }
func (m *fakeRepoManager) MustValidate()   {}

func (m *fakeRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *fakeRepoManager) Users() dualauth.Users                   { return m.users }
func (m *fakeRepoManager) Tokens() dualauth.TokenStore             { return nil }
func (m *fakeRepoManager) Policies() dualauth.PolicyStore          { return nil }
func (m *fakeRepoManager) LegacyTokens() dualauth.LegacyTokenStore { return nil }

func (m *fakeRepoManager) Organizations() repository.Repository[*dualauth.Organization] {
	return nil
}

func (m *fakeRepoManager) Members() repository.Repository[*dualauth.OrganizationMember] {
	return nil
}

func newTestUser(orgID *uuid.UUID) *dualauth.User {
	return &dualauth.User{
		ID:                   uuid.New(),
		Role:                 dualauth.RoleMember,
		Username:             "tester",
		Email:                "tester@example.com",
		ActiveOrganizationID: orgID,
	}
}
