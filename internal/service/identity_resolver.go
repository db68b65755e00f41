package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

const (
	maxUsernameAttempts = 5
	maxUsernameBaseLen  = 40
	usernameSuffixLen   = 8
	base36Alphabet      = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// IdentityResolver превращает профиль внешнего провайдера в каноническую Identity
type IdentityResolver struct {
	store    repository.CredentialStore
	now      func() time.Time
	random   io.Reader
	attempts int
	logger   *zap.Logger
}

// NewIdentityResolver создает IdentityResolver
func NewIdentityResolver(store repository.CredentialStore, logger *zap.Logger) (*IdentityResolver, error) {
	if store == nil {
		return nil, errors.New("credential store is required for IdentityResolver")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityResolver{
		store:    store,
		now:      time.Now,
		random:   rand.Reader,
		attempts: maxUsernameAttempts,
		logger:   logger.With(zap.String("component", "identity_resolver")),
	}, nil
}

// Resolve находит существующую запись по (provider, subject) или email, иначе создает новую.
// Повторный вход не обновляет поля профиля. created=true, если запись создана этим вызовом.
func (r *IdentityResolver) Resolve(ctx context.Context, profile entity.ProviderProfile) (*entity.Identity, bool, error) {
	email := entity.NormalizeEmail(profile.Email)
	if profile.Provider == "" || profile.SubjectID == "" {
		return nil, false, apperrors.New(apperrors.ErrValidation, "provider profile is missing subject")
	}
	if email == "" {
		return nil, false, apperrors.New(apperrors.ErrValidation, "provider profile has no email")
	}

	existing, err := r.store.FindByProviderIdentity(ctx, email, profile.Provider, profile.SubjectID)
	switch {
	case err == nil:
		// Совпадение только по email допустимо лишь для подтвержденного адреса
		if profile.EmailVerified || existing.HasLink(profile.Provider, profile.SubjectID) {
			return existing, false, nil
		}
		r.logger.Warn("provider email not verified, refusing email match",
			zap.String("provider", profile.Provider), zap.String("identity_id", existing.ID))
		return nil, false, apperrors.Wrap(apperrors.ErrValidation, "provider email is not verified", ErrUnverifiedEmail)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, false, err
	}

	// Неподтвержденный адрес не может занять email новой записи
	if !profile.EmailVerified {
		return nil, false, apperrors.Wrap(apperrors.ErrValidation, "provider email is not verified", ErrUnverifiedEmail)
	}

	username, err := r.uniqueUsername(ctx, email)
	if err != nil {
		return nil, false, err
	}

	first, last := strings.TrimSpace(profile.FirstName), strings.TrimSpace(profile.LastName)
	if first == "" && last == "" {
		first, last = splitDisplayName(profile.DisplayName)
	}
	created, err := r.store.CreateIdentity(ctx, entity.NewIdentity{
		FirstName: first,
		LastName:  last,
		Username:  username,
		Email:     email,
		ExternalAccounts: []entity.ExternalAccountLink{{
			Provider:  profile.Provider,
			SubjectID: profile.SubjectID,
			LinkedAt:  r.now().UTC(),
		}},
	})
	if err == nil {
		r.logger.Info("identity created from provider",
			zap.String("provider", profile.Provider), zap.String("identity_id", created.ID))
		return created, true, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, false, err
	}

	// Конкурентный вход того же пользователя мог создать запись раньше нас
	winner, findErr := r.store.FindByProviderIdentity(ctx, email, profile.Provider, profile.SubjectID)
	if findErr == nil {
		return winner, false, nil
	}
	r.logger.Warn("identity create lost race", zap.String("provider", profile.Provider), zap.Error(err))
	return nil, false, err
}

// uniqueUsername подбирает свободное имя, не более r.attempts попыток
func (r *IdentityResolver) uniqueUsername(ctx context.Context, email string) (string, error) {
	for attempt := 0; attempt < r.attempts; attempt++ {
		candidate, err := r.usernameCandidate(email)
		if err != nil {
			return "", err
		}
		_, err = r.store.FindByIdentifier(ctx, candidate)
		if errors.Is(err, apperrors.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		r.logger.Debug("username candidate taken", zap.Int("attempt", attempt+1))
	}
	return "", apperrors.New(apperrors.ErrUnavailable, "could not generate a unique username")
}

// usernameCandidate строит имя вида user-<localpart>-<unix ms>-<0..999><8 символов base36>
func (r *IdentityResolver) usernameCandidate(email string) (string, error) {
	base := sanitizeUsername(strings.SplitN(email, "@", 2)[0])
	if base == "" {
		base = "anon"
	}
	if len(base) > maxUsernameBaseLen {
		base = base[:maxUsernameBaseLen]
	}

	n, err := rand.Int(r.random, big.NewInt(1000))
	if err != nil {
		return "", fmt.Errorf("failed to generate username: %w", err)
	}
	suffix, err := randomBase36(r.random, usernameSuffixLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate username: %w", err)
	}

	return "user-" + base + "-" + strconv.FormatInt(r.now().UnixMilli(), 10) + "-" + n.String() + suffix, nil
}

func randomBase36(random io.Reader, length int) (string, error) {
	max := big.NewInt(int64(len(base36Alphabet)))
	var b strings.Builder
	for i := 0; i < length; i++ {
		idx, err := rand.Int(random, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(base36Alphabet[idx.Int64()])
	}
	return b.String(), nil
}

func splitDisplayName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var b strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
