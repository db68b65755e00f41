package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/domain/entity"
)

const googleIssuer = "https://accounts.google.com"

// GoogleProvider реализует вход через Google OpenID Connect
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	logger      *zap.Logger
}

// NewGoogleProvider выполняет discovery и создает провайдера
func NewGoogleProvider(ctx context.Context, cfg config.OAuthProviderConfig, logger *zap.Logger) (*GoogleProvider, error) {
	return newGoogleProvider(ctx, googleIssuer, cfg, logger)
}

func newGoogleProvider(ctx context.Context, issuer string, cfg config.OAuthProviderConfig, logger *zap.Logger) (*GoogleProvider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("google oauth config missing required fields")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       scopesOr(cfg.Scopes, []string{oidc.ScopeOpenID, "profile", "email"}),
		},
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		logger:   logger.With(zap.String("provider", ProviderGoogle)),
	}, nil
}

// Name возвращает имя провайдера для реестра
func (p *GoogleProvider) Name() string {
	return ProviderGoogle
}

// BeginAuth строит URL авторизации с PKCE
func (p *GoogleProvider) BeginAuth(state, verifier string) string {
	return authCodeURL(p.oauthConfig, state, verifier)
}

// CompleteAuth обменивает код и проверяет id_token
func (p *GoogleProvider) CompleteAuth(ctx context.Context, params CallbackParams) (*entity.ProviderProfile, error) {
	token, err := exchange(ctx, p.oauthConfig, params)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google id_token verification failed: %w", err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google id_token claims parse failed: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("google id_token missing required claims")
	}

	first, last := claims.GivenName, claims.FamilyName
	if first == "" && last == "" {
		first, last = splitName(claims.Name)
	}

	p.logger.Debug("google oidc verified",
		zap.Bool("email_verified", claims.EmailVerified),
		zap.Time("expiry", idToken.Expiry))

	return &entity.ProviderProfile{
		Provider:      ProviderGoogle,
		SubjectID:     claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		FirstName:     first,
		LastName:      last,
		DisplayName:   claims.Name,
	}, nil
}
