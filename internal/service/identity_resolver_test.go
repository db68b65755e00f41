package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

var generatedUsernamePattern = regexp.MustCompile(`^user-[a-z0-9_.]+-\d{13}-\d{1,3}[0-9a-z]{8}$`)

func createTestResolver(t *testing.T) (*IdentityResolver, *MockCredentialStore) {
	t.Helper()
	store := new(MockCredentialStore)
	resolver, err := NewIdentityResolver(store, zap.NewNop())
	require.NoError(t, err)
	resolver.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return resolver, store
}

func googleProfile() entity.ProviderProfile {
	return entity.ProviderProfile{
		Provider:      "google",
		SubjectID:     "g-123",
		Email:         "Ann.Smith@Example.com",
		EmailVerified: true,
		FirstName:     "Ann",
		LastName:      "Smith",
	}
}

func TestIdentityResolver_ExistingIdentity(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	existing := &entity.Identity{ID: "id-1", Username: "ann", FirstName: "Old"}
	store.On("FindByProviderIdentity", mock.Anything, "ann.smith@example.com", "google", "g-123").Return(existing, nil)

	// Act
	identity, created, err := resolver.Resolve(context.Background(), googleProfile())

	// Assert
	require.NoError(t, err)
	assert.False(t, created, "существующая запись не должна считаться созданной")
	assert.Same(t, existing, identity)
	assert.Equal(t, "Old", identity.FirstName, "повторный вход не обновляет профиль")
	store.AssertNotCalled(t, "CreateIdentity", mock.Anything, mock.Anything)
}

func TestIdentityResolver_CreatesNewIdentity(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	store.On("FindByProviderIdentity", mock.Anything, "ann.smith@example.com", "google", "g-123").
		Return(nil, apperrors.ErrNotFound)
	store.On("FindByIdentifier", mock.Anything, mock.AnythingOfType("string")).Return(nil, apperrors.ErrNotFound)

	var captured entity.NewIdentity
	store.On("CreateIdentity", mock.Anything, mock.AnythingOfType("entity.NewIdentity")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(entity.NewIdentity) }).
		Return(&entity.Identity{ID: "new-id"}, nil)

	// Act
	identity, created, err := resolver.Resolve(context.Background(), googleProfile())

	// Assert
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new-id", identity.ID)
	assert.Regexp(t, generatedUsernamePattern, captured.Username, "username должен соответствовать формату")
	assert.Contains(t, captured.Username, "user-ann.smith-1700000000000-")
	assert.Equal(t, "ann.smith@example.com", captured.Email)
	assert.Equal(t, "Ann", captured.FirstName)
	assert.Empty(t, captured.Password, "у федеративной записи нет пароля")
	require.Len(t, captured.ExternalAccounts, 1)
	assert.Equal(t, "google", captured.ExternalAccounts[0].Provider)
	assert.Equal(t, "g-123", captured.ExternalAccounts[0].SubjectID)
}

func TestIdentityResolver_SplitsDisplayName(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	profile := entity.ProviderProfile{Provider: "github", SubjectID: "42", Email: "octo@example.com", EmailVerified: true, DisplayName: "Mona Lisa Octocat"}
	store.On("FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)
	store.On("FindByIdentifier", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)

	var captured entity.NewIdentity
	store.On("CreateIdentity", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(entity.NewIdentity) }).
		Return(&entity.Identity{ID: "x"}, nil)

	// Act
	_, _, err := resolver.Resolve(context.Background(), profile)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Mona", captured.FirstName)
	assert.Equal(t, "Lisa Octocat", captured.LastName)
}

func TestIdentityResolver_UsernameRetriesAreBounded(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	store.On("FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)
	store.On("FindByIdentifier", mock.Anything, mock.Anything).Return(&entity.Identity{ID: "taken"}, nil)

	// Act
	identity, created, err := resolver.Resolve(context.Background(), googleProfile())

	// Assert
	require.Error(t, err)
	assert.Nil(t, identity)
	assert.False(t, created)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	store.AssertNumberOfCalls(t, "FindByIdentifier", maxUsernameAttempts)
	store.AssertNotCalled(t, "CreateIdentity", mock.Anything, mock.Anything)
}

func TestIdentityResolver_LostRaceReturnsWinner(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	winner := &entity.Identity{ID: "winner"}
	store.On("FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrNotFound).Once()
	store.On("FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(winner, nil).Once()
	store.On("FindByIdentifier", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)
	store.On("CreateIdentity", mock.Anything, mock.Anything).Return(nil, apperrors.ErrConflict)

	// Act
	identity, created, err := resolver.Resolve(context.Background(), googleProfile())

	// Assert
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", identity.ID)
}

func TestIdentityResolver_ConflictWithoutWinner(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	store.On("FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)
	store.On("FindByIdentifier", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)
	store.On("CreateIdentity", mock.Anything, mock.Anything).Return(nil, apperrors.ErrConflict)

	// Act
	_, _, err := resolver.Resolve(context.Background(), googleProfile())

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	store.AssertNumberOfCalls(t, "FindByProviderIdentity", 2)
}

func TestIdentityResolver_InvalidProfile(t *testing.T) {
	tests := []struct {
		name    string
		profile entity.ProviderProfile
	}{
		{"без email", entity.ProviderProfile{Provider: "google", SubjectID: "1"}},
		{"без subject", entity.ProviderProfile{Provider: "google", Email: "a@b.c"}},
		{"без провайдера", entity.ProviderProfile{SubjectID: "1", Email: "a@b.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, store := createTestResolver(t)

			_, _, err := resolver.Resolve(context.Background(), tt.profile)

			assert.ErrorIs(t, err, apperrors.ErrValidation)
			store.AssertNotCalled(t, "FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIdentityResolver_StoreUnavailable(t *testing.T) {
	resolver, store := createTestResolver(t)
	store.On("FindByProviderIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.Wrap(apperrors.ErrUnavailable, "user store timeout", context.DeadlineExceeded))

	_, _, err := resolver.Resolve(context.Background(), googleProfile())

	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Ann.Smith", "ann.smith"},
		{"  john+tag ", "johntag"},
		{"Имя", ""},
		{"a_b-c", "a_bc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeUsername(tt.input), "input=%q", tt.input)
	}
}

func TestUsernameCandidate_EmptyLocalPart(t *testing.T) {
	resolver, _ := createTestResolver(t)

	candidate, err := resolver.usernameCandidate("+++@example.com")

	require.NoError(t, err)
	assert.Regexp(t, `^user-anon-1700000000000-\d{1,3}[0-9a-z]{8}$`, candidate)
}

func TestIdentityResolver_UnverifiedEmailDoesNotMatchExistingIdentity(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	victim := &entity.Identity{ID: "victim-id", Email: "victim@example.com"}
	store.On("FindByProviderIdentity", mock.Anything, "victim@example.com", "github", "7").Return(victim, nil)
	profile := entity.ProviderProfile{Provider: "github", SubjectID: "7", Email: "victim@example.com"}

	// Act
	identity, created, err := resolver.Resolve(context.Background(), profile)

	// Assert
	assert.Nil(t, identity, "чужая запись не должна возвращаться по неподтвержденному email")
	assert.False(t, created)
	assert.ErrorIs(t, err, ErrUnverifiedEmail)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, FederatedErrEmailUnverified, FederatedErrorCode(err))
	store.AssertNotCalled(t, "CreateIdentity", mock.Anything, mock.Anything)
}

func TestIdentityResolver_UnverifiedEmailWithExistingLink(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	linked := &entity.Identity{
		ID:               "id-1",
		ExternalAccounts: []entity.ExternalAccountLink{{Provider: "github", SubjectID: "7"}},
	}
	store.On("FindByProviderIdentity", mock.Anything, "octo@example.com", "github", "7").Return(linked, nil)
	profile := entity.ProviderProfile{Provider: "github", SubjectID: "7", Email: "octo@example.com"}

	// Act
	identity, created, err := resolver.Resolve(context.Background(), profile)

	// Assert
	require.NoError(t, err, "повторный вход по привязке не зависит от подтверждения email")
	assert.False(t, created)
	assert.Same(t, linked, identity)
}

func TestIdentityResolver_UnverifiedEmailDoesNotCreate(t *testing.T) {
	// Arrange
	resolver, store := createTestResolver(t)
	store.On("FindByProviderIdentity", mock.Anything, "new@example.com", "microsoft", "m-1").Return(nil, apperrors.ErrNotFound)
	profile := entity.ProviderProfile{Provider: "microsoft", SubjectID: "m-1", Email: "new@example.com"}

	// Act
	_, created, err := resolver.Resolve(context.Background(), profile)

	// Assert
	assert.False(t, created)
	assert.ErrorIs(t, err, ErrUnverifiedEmail)
	store.AssertNotCalled(t, "FindByIdentifier", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "CreateIdentity", mock.Anything, mock.Anything)
}
