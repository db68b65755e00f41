package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// ============================================================================
// Моки для тестирования сервисов
// ============================================================================

// MockCredentialStore реализует repository.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByIdentifier(ctx context.Context, identifier string) (*entity.Identity, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockCredentialStore) FindByProviderIdentity(ctx context.Context, email, provider, subjectID string) (*entity.Identity, error) {
	args := m.Called(ctx, email, provider, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockCredentialStore) CreateIdentity(ctx context.Context, in entity.NewIdentity) (*entity.Identity, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockCredentialStore) VerifyCredentials(ctx context.Context, identifier, password string) (*entity.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockCredentialStore) FindByID(ctx context.Context, id string) (*entity.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

// MockNotifier реализует Notifier
type MockNotifier struct {
	mock.Mock
	sent chan RegistrationNotice
}

func newMockNotifier() *MockNotifier {
	return &MockNotifier{sent: make(chan RegistrationNotice, 4)}
}

func (m *MockNotifier) SendRegistration(ctx context.Context, notice RegistrationNotice) error {
	args := m.Called(ctx, notice)
	m.sent <- notice
	return args.Error(0)
}

// MockSessionRepository реализует repository.SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *entity.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Session), args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
