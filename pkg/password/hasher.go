package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// MaxBytes - предел bcrypt: более длинные пароли GenerateFromPassword отвергает
const MaxBytes = 72

var (
	// ErrMismatch возвращается, когда пароль не соответствует хешу
	ErrMismatch = errors.New("password mismatch")
	// ErrTooLong возвращается для паролей длиннее MaxBytes байт
	ErrTooLong = errors.New("password exceeds 72 bytes")
)

// Hasher хеширует и сверяет пароли через bcrypt с настраиваемой стоимостью
type Hasher struct {
	cost      int
	dummyHash []byte
}

// NewHasher создает Hasher. Стоимость вне допустимого диапазона bcrypt является ошибкой.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	// Хеш-заглушка нужной стоимости: сравнение с ним занимает столько же времени,
	// сколько сравнение с настоящим хешем
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummyHash: dummy}, nil
}

// Hash возвращает bcrypt-хеш пароля
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("password must not be empty")
	}
	if len(plain) > MaxBytes {
		return "", apperrors.Wrap(apperrors.ErrValidation, fmt.Sprintf("Password must be at most %d bytes", MaxBytes), ErrTooLong)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare сверяет пароль с хешем. Пустой хеш сверяется с заглушкой и всегда дает ErrMismatch.
func (h *Hasher) Compare(hash, plain string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrMismatch
	}
	return nil
}

// IsHash сообщает, похожа ли строка на bcrypt-хеш ("$2a$", "$2b$" или "$2y$")
func IsHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
