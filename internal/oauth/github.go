package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	githubEndpoint "golang.org/x/oauth2/github"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/domain/entity"
)

const githubAPIBase = "https://api.github.com"

// GitHubProvider реализует вход через GitHub OAuth 2.0.
// ID-токена нет, профиль и email читаются из REST API.
type GitHubProvider struct {
	oauthConfig *oauth2.Config
	apiBase     string
	logger      *zap.Logger
}

// NewGitHubProvider создает провайдера GitHub
func NewGitHubProvider(cfg config.OAuthProviderConfig, logger *zap.Logger) (*GitHubProvider, error) {
	return newGitHubProvider(cfg, githubEndpoint.Endpoint, githubAPIBase, logger)
}

func newGitHubProvider(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, apiBase string, logger *zap.Logger) (*GitHubProvider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("github oauth config missing required fields")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopesOr(cfg.Scopes, []string{"read:user", "user:email"}),
		},
		apiBase: strings.TrimRight(apiBase, "/"),
		logger:  logger.With(zap.String("provider", ProviderGitHub)),
	}, nil
}

// Name возвращает имя провайдера для реестра
func (p *GitHubProvider) Name() string {
	return ProviderGitHub
}

// BeginAuth строит URL авторизации с PKCE
func (p *GitHubProvider) BeginAuth(state, verifier string) string {
	return authCodeURL(p.oauthConfig, state, verifier, oauth2.SetAuthURLParam("allow_signup", "true"))
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// CompleteAuth обменивает код и читает профиль пользователя
func (p *GitHubProvider) CompleteAuth(ctx context.Context, params CallbackParams) (*entity.ProviderProfile, error) {
	token, err := exchange(ctx, p.oauthConfig, params)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	client := p.oauthConfig.Client(ctx, token)

	var user githubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github profile missing id")
	}

	// Публичный email из /user не несет признака подтверждения, поэтому используется только /user/emails
	primary, err := p.primaryEmail(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("github: no verified email available (%v): %w", err, ErrProfileIncomplete)
	}

	first, last := splitName(user.Name)
	if first == "" {
		first = user.Login
	}

	return &entity.ProviderProfile{
		Provider:      ProviderGitHub,
		SubjectID:     strconv.FormatInt(user.ID, 10),
		Email:         primary.Email,
		EmailVerified: primary.Verified,
		FirstName:     first,
		LastName:      last,
		DisplayName:   firstNonEmpty(user.Name, user.Login),
	}, nil
}

// primaryEmail выбирает основной подтвержденный адрес, затем любой подтвержденный.
// Неподтвержденные адреса не возвращаются никогда.
func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) (*githubEmail, error) {
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}
	for i := range emails {
		if emails[i].Primary && emails[i].Verified {
			return &emails[i], nil
		}
	}
	for i := range emails {
		if emails[i].Verified {
			return &emails[i], nil
		}
	}
	return nil, errors.New("no verified email found")
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api error: %s status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode github %s: %w", path, err)
	}
	return nil
}
