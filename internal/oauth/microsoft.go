package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/domain/entity"
)

const (
	microsoftLoginBase = "https://login.microsoftonline.com"
	microsoftGraphBase = "https://graph.microsoft.com"
	// Для мультитенантных приложений discovery-документ отдает шаблонный issuer
	microsoftTemplatedIssuer = microsoftLoginBase + "/{tenantid}/v2.0"
)

// MicrosoftProvider реализует вход через Microsoft identity platform.
// id_token проверяется по OIDC, профиль дочитывается из Microsoft Graph.
type MicrosoftProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	graphBase   string
	multiTenant bool
	logger      *zap.Logger
}

// NewMicrosoftProvider выполняет discovery для tenant и создает провайдера
func NewMicrosoftProvider(ctx context.Context, cfg config.MicrosoftProviderConfig, logger *zap.Logger) (*MicrosoftProvider, error) {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	issuer := fmt.Sprintf("%s/%s/v2.0", microsoftLoginBase, tenant)
	return newMicrosoftProvider(ctx, issuer, microsoftGraphBase, isMultiTenant(tenant), cfg.OAuthProviderConfig, logger)
}

func isMultiTenant(tenant string) bool {
	switch strings.ToLower(tenant) {
	case "common", "organizations", "consumers":
		return true
	}
	return false
}

func newMicrosoftProvider(ctx context.Context, issuer, graphBase string, multiTenant bool, cfg config.OAuthProviderConfig, logger *zap.Logger) (*MicrosoftProvider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("microsoft oauth config missing required fields")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	discoveryCtx := ctx
	if multiTenant {
		discoveryCtx = oidc.InsecureIssuerURLContext(ctx, microsoftTemplatedIssuer)
	}
	oidcProvider, err := oidc.NewProvider(discoveryCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init microsoft oidc provider: %w", err)
	}

	return &MicrosoftProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       scopesOr(cfg.Scopes, []string{oidc.ScopeOpenID, "profile", "email", "User.Read"}),
		},
		// У мультитенантных токенов issuer содержит tenant пользователя
		verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID:        cfg.ClientID,
			SkipIssuerCheck: multiTenant,
		}),
		graphBase:   strings.TrimRight(graphBase, "/"),
		multiTenant: multiTenant,
		logger:      logger.With(zap.String("provider", ProviderMicrosoft)),
	}, nil
}

// Name возвращает имя провайдера для реестра
func (p *MicrosoftProvider) Name() string {
	return ProviderMicrosoft
}

// BeginAuth строит URL авторизации с PKCE
func (p *MicrosoftProvider) BeginAuth(state, verifier string) string {
	return authCodeURL(p.oauthConfig, state, verifier, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type graphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// CompleteAuth обменивает код, проверяет id_token и читает профиль из Graph /me
func (p *MicrosoftProvider) CompleteAuth(ctx context.Context, params CallbackParams) (*entity.ProviderProfile, error) {
	token, err := exchange(ctx, p.oauthConfig, params)
	if err != nil {
		return nil, fmt.Errorf("microsoft: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("microsoft did not return id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("microsoft id_token verification failed: %w", err)
	}

	var claims struct {
		ObjectID            string `json:"oid"`
		Email               string `json:"email"`
		PreferredUsername   string `json:"preferred_username"`
		Name                string `json:"name"`
		EmailDomainVerified bool   `json:"xms_edov"` // домен email подтвержден владельцем tenant
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("microsoft id_token claims parse failed: %w", err)
	}

	me, err := p.fetchGraphUser(ctx, token)
	if err != nil {
		return nil, err
	}

	subject := me.ID
	if subject == "" {
		subject = claims.ObjectID
	}
	email := firstNonEmpty(me.Mail, claims.Email, me.UserPrincipalName, claims.PreferredUsername)
	if subject == "" || email == "" {
		return nil, errors.New("microsoft profile missing subject or email")
	}

	first, last := me.GivenName, me.Surname
	if first == "" && last == "" {
		first, last = splitName(firstNonEmpty(me.DisplayName, claims.Name))
	}

	// В своем tenant адреса выдает администратор; в мультитенантном режиме нужен xms_edov
	verified := !p.multiTenant || claims.EmailDomainVerified

	return &entity.ProviderProfile{
		Provider:      ProviderMicrosoft,
		SubjectID:     subject,
		Email:         email,
		EmailVerified: verified,
		FirstName:     first,
		LastName:      last,
		DisplayName:   firstNonEmpty(me.DisplayName, claims.Name),
	}, nil
}

func (p *MicrosoftProvider) fetchGraphUser(ctx context.Context, token *oauth2.Token) (*graphUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphBase+"/v1.0/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("microsoft graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("microsoft graph error: status %d", resp.StatusCode)
	}

	var me graphUser
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("failed to decode graph profile: %w", err)
	}
	p.logger.Debug("microsoft graph profile fetched", zap.Bool("mail_present", me.Mail != ""))
	return &me, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
