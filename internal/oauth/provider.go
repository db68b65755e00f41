// Package oauth описывает внешних провайдеров входа и их реестр.
// Провайдер выдает URL начала рукопожатия и превращает параметры callback
// в проверенный профиль пользователя.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// Имена провайдеров
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderGitHub    = "github"
)

var (
	// ErrUnknownProvider возвращается реестром для незарегистрированного имени
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrAccessDenied возвращается, когда провайдер сообщил об ошибке в callback
	ErrAccessDenied = errors.New("oauth access denied")
	// ErrInvalidCallback возвращается, когда в callback нет кода или state не совпал
	ErrInvalidCallback = errors.New("invalid oauth callback")
	// ErrProfileIncomplete возвращается, когда провайдер не отдал обязательные поля профиля
	ErrProfileIncomplete = errors.New("oauth profile incomplete")
)

// CallbackParams содержит параметры, пришедшие на callback, и сохраненный PKCE verifier
type CallbackParams struct {
	Code             string
	State            string
	ExpectedState    string
	Verifier         string
	Error            string
	ErrorDescription string
}

// Validate проверяет, что callback пригоден для обмена кода
func (p CallbackParams) Validate() error {
	if p.Error != "" {
		return fmt.Errorf("%w: %s %s", ErrAccessDenied, p.Error, p.ErrorDescription)
	}
	if p.Code == "" {
		return fmt.Errorf("%w: missing code", ErrInvalidCallback)
	}
	if p.State == "" || p.State != p.ExpectedState {
		return fmt.Errorf("%w: state mismatch", ErrInvalidCallback)
	}
	return nil
}

// Provider - внешний провайдер входа
type Provider interface {
	Name() string
	// BeginAuth возвращает URL, на который нужно перенаправить пользователя
	BeginAuth(state, verifier string) string
	// CompleteAuth обменивает код и возвращает проверенный профиль
	CompleteAuth(ctx context.Context, params CallbackParams) (*entity.ProviderProfile, error)
}

// Registry хранит провайдеров по имени
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry создает реестр из списка провайдеров
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register добавляет или заменяет провайдера
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// Get возвращает провайдера по имени
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names возвращает отсортированный список зарегистрированных провайдеров
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewVerifier создает PKCE code verifier
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

func authCodeURL(cfg *oauth2.Config, state, verifier string, extra ...oauth2.AuthCodeOption) string {
	opts := append([]oauth2.AuthCodeOption{oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)}, extra...)
	return cfg.AuthCodeURL(state, opts...)
}

func exchange(ctx context.Context, cfg *oauth2.Config, params CallbackParams) (*oauth2.Token, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	token, err := cfg.Exchange(ctx, params.Code, oauth2.VerifierOption(params.Verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

// splitName делит отображаемое имя на имя и фамилию
func splitName(display string) (string, string) {
	parts := strings.Fields(display)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func scopesOr(scopes, fallback []string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return fallback
}
