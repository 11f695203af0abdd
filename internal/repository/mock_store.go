package repository

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"crm-api/internal/model"
)

type MockLeadStore struct {
	mock.Mock
}

func (m *MockLeadStore) List(ctx context.Context, tenantID string) ([]model.Lead, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

func (m *MockLeadStore) Get(ctx context.Context, tenantID string, id string) (model.Lead, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Get(0).(model.Lead), args.Error(1)
}

func (m *MockLeadStore) Create(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func (m *MockLeadStore) Update(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func (m *MockLeadStore) Delete(ctx context.Context, tenantID string, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

type MockOpportunityStore struct {
	mock.Mock
}

func (m *MockOpportunityStore) List(ctx context.Context, tenantID string) ([]model.Opportunity, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Opportunity), args.Error(1)
}

func (m *MockOpportunityStore) Get(ctx context.Context, tenantID string, id string) (model.Opportunity, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Get(0).(model.Opportunity), args.Error(1)
}

func (m *MockOpportunityStore) Create(ctx context.Context, o model.Opportunity) (model.Opportunity, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(model.Opportunity), args.Error(1)
}

func (m *MockOpportunityStore) Update(ctx context.Context, o model.Opportunity) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOpportunityStore) Move(ctx context.Context, tenantID string, id string, stage model.Stage, position int) (model.Opportunity, error) {
	args := m.Called(ctx, tenantID, id, stage, position)
	return args.Get(0).(model.Opportunity), args.Error(1)
}

func (m *MockOpportunityStore) Delete(ctx context.Context, tenantID string, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByID(ctx context.Context, id string) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) FindByUsername(ctx context.Context, tenantID string, username string) (model.User, error) {
	args := m.Called(ctx, tenantID, username)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) Create(ctx context.Context, u model.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Store(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	args := m.Called(ctx, token, userID, expiresAt)
	return args.Error(0)
}

func (m *MockTokenStore) Validate(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) Rotate(ctx context.Context, oldToken string, newToken string, userID string, expiresAt time.Time) error {
	args := m.Called(ctx, oldToken, newToken, userID, expiresAt)
	return args.Error(0)
}

func (m *MockTokenStore) Revoke(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) CleanExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) Log(ctx context.Context, entry model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditStore) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Get(1).(model.Meta), args.Error(2)
	}
	return args.Get(0).([]model.AuditEntry), args.Get(1).(model.Meta), args.Error(2)
}

var (
	_ LeadStore        = (*MockLeadStore)(nil)
	_ OpportunityStore = (*MockOpportunityStore)(nil)
	_ UserStore        = (*MockUserStore)(nil)
	_ TokenStore       = (*MockTokenStore)(nil)
	_ AuditStore       = (*MockAuditStore)(nil)
)
