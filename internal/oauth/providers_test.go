package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/yourusername/auth-api/internal/config"
)

const testClientID = "client-id"

// fakeIdP эмулирует OIDC-провайдера: discovery, JWKS, token endpoint и Graph /me
type fakeIdP struct {
	t        *testing.T
	server   *httptest.Server
	key      *rsa.PrivateKey
	claims   jwt.MapClaims
	graphMe  map[string]interface{}
	verifier string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{t: t, key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", idp.discovery)
	mux.HandleFunc("/keys", idp.jwks)
	mux.HandleFunc("/token", idp.token)
	mux.HandleFunc("/v1.0/me", idp.me)
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (f *fakeIdP) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	base := f.server.URL
	f.writeJSON(w, map[string]interface{}{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "test-key",
			"n":   base64.RawURLEncoding.EncodeToString(f.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
		}},
	})
}

func (f *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.verifier = r.PostForm.Get("code_verifier")

	claims := jwt.MapClaims{
		"iss": f.server.URL,
		"aud": testClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range f.claims {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-key"
	idToken, err := tok.SignedString(f.key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	f.writeJSON(w, map[string]interface{}{
		"access_token": "access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (f *fakeIdP) me(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer access-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.writeJSON(w, f.graphMe)
}

func testProviderConfig() config.OAuthProviderConfig {
	return config.OAuthProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/callback",
	}
}

func validCallback(verifier string) CallbackParams {
	return CallbackParams{Code: "code", State: "state", ExpectedState: "state", Verifier: verifier}
}

func TestGoogleProvider_CompleteAuth(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = jwt.MapClaims{
		"sub":            "google-sub-1",
		"email":          "john@example.com",
		"email_verified": true,
		"given_name":     "John",
		"family_name":    "Doe",
		"name":           "John Doe",
	}
	ctx := context.Background()

	p, err := newGoogleProvider(ctx, idp.server.URL, testProviderConfig(), nil)
	require.NoError(t, err)

	verifier := NewVerifier()
	profile, err := p.CompleteAuth(ctx, validCallback(verifier))
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogle, profile.Provider)
	assert.Equal(t, "google-sub-1", profile.SubjectID)
	assert.Equal(t, "john@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "John", profile.FirstName)
	assert.Equal(t, "Doe", profile.LastName)
	assert.Equal(t, verifier, idp.verifier, "PKCE verifier должен передаваться при обмене кода")
}

func TestGoogleProvider_RejectsWrongAudience(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = jwt.MapClaims{"sub": "s", "email": "e@example.com", "aud": "someone-else"}
	ctx := context.Background()

	p, err := newGoogleProvider(ctx, idp.server.URL, testProviderConfig(), nil)
	require.NoError(t, err)

	_, err = p.CompleteAuth(ctx, validCallback(NewVerifier()))
	assert.Error(t, err)
}

func TestGoogleProvider_StateMismatchSkipsExchange(t *testing.T) {
	idp := newFakeIdP(t)
	ctx := context.Background()

	p, err := newGoogleProvider(ctx, idp.server.URL, testProviderConfig(), nil)
	require.NoError(t, err)

	_, err = p.CompleteAuth(ctx, CallbackParams{Code: "c", State: "a", ExpectedState: "b"})
	assert.ErrorIs(t, err, ErrInvalidCallback)
	assert.Empty(t, idp.verifier, "обмен кода не должен выполняться")
}

func TestGoogleProvider_RequiresConfig(t *testing.T) {
	_, err := NewGoogleProvider(context.Background(), config.OAuthProviderConfig{}, nil)
	assert.Error(t, err)
}

func TestMicrosoftProvider_CompleteAuthUsesGraphProfile(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = jwt.MapClaims{
		"sub":                "pairwise-sub",
		"oid":                "object-id",
		"preferred_username": "jane@contoso.com",
		"name":               "Jane Roe",
	}
	idp.graphMe = map[string]interface{}{
		"id":                "graph-id-1",
		"displayName":       "Jane Roe",
		"givenName":         "Jane",
		"surname":           "Roe",
		"mail":              "jane.roe@contoso.com",
		"userPrincipalName": "jane@contoso.com",
	}
	ctx := context.Background()

	p, err := newMicrosoftProvider(ctx, idp.server.URL, idp.server.URL, false, testProviderConfig(), nil)
	require.NoError(t, err)

	profile, err := p.CompleteAuth(ctx, validCallback(NewVerifier()))
	require.NoError(t, err)

	assert.Equal(t, ProviderMicrosoft, profile.Provider)
	assert.Equal(t, "graph-id-1", profile.SubjectID)
	assert.Equal(t, "jane.roe@contoso.com", profile.Email)
	assert.True(t, profile.EmailVerified, "в однотенантном режиме адрес выдан администратором tenant")
	assert.Equal(t, "Jane", profile.FirstName)
	assert.Equal(t, "Roe", profile.LastName)
}

func TestMicrosoftProvider_GraphFailure(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = jwt.MapClaims{"sub": "s", "oid": "o"}
	ctx := context.Background()

	// Graph по другому адресу отвечает 404
	graph := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(graph.Close)

	p, err := newMicrosoftProvider(ctx, idp.server.URL, graph.URL, false, testProviderConfig(), nil)
	require.NoError(t, err)

	_, err = p.CompleteAuth(ctx, validCallback(NewVerifier()))
	assert.Error(t, err)
}

func TestIsMultiTenant(t *testing.T) {
	assert.True(t, isMultiTenant("common"))
	assert.True(t, isMultiTenant("Organizations"))
	assert.True(t, isMultiTenant("consumers"))
	assert.False(t, isMultiTenant("72f988bf-86f1-41af-91ab-2d7cd011db47"))
}

func newGitHubTestServer(t *testing.T, user map[string]interface{}, emails []map[string]interface{}) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "gh-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if emails == nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHubProvider(t *testing.T, srv *httptest.Server) *GitHubProvider {
	t.Helper()
	p, err := newGitHubProvider(testProviderConfig(), oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL, nil)
	require.NoError(t, err)
	return p
}

func TestGitHubProvider_PrefersPrimaryVerifiedEmail(t *testing.T) {
	srv := newGitHubTestServer(t,
		map[string]interface{}{"id": 42, "login": "octocat", "name": "Mona Lisa Octocat"},
		[]map[string]interface{}{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "mona@example.com", "primary": true, "verified": true},
		})
	p := newTestGitHubProvider(t, srv)

	profile, err := p.CompleteAuth(context.Background(), validCallback(NewVerifier()))
	require.NoError(t, err)

	assert.Equal(t, "42", profile.SubjectID)
	assert.Equal(t, "mona@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Mona", profile.FirstName)
	assert.Equal(t, "Lisa Octocat", profile.LastName)
}

func TestGitHubProvider_FallsBackToAnyVerifiedEmail(t *testing.T) {
	srv := newGitHubTestServer(t,
		map[string]interface{}{"id": 7, "login": "ghost"},
		[]map[string]interface{}{
			{"email": "primary@example.com", "primary": true, "verified": false},
			{"email": "ghost@example.com", "primary": false, "verified": true},
		})
	p := newTestGitHubProvider(t, srv)

	profile, err := p.CompleteAuth(context.Background(), validCallback(NewVerifier()))
	require.NoError(t, err)

	assert.Equal(t, "ghost@example.com", profile.Email, "неподтвержденный основной адрес должен пропускаться")
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "ghost", profile.FirstName, "логин используется, если имени нет")
}

func TestGitHubProvider_RejectsUnverifiedEmails(t *testing.T) {
	tests := []struct {
		name   string
		user   map[string]interface{}
		emails []map[string]interface{}
	}{
		{
			name:   "только неподтвержденный основной адрес",
			user:   map[string]interface{}{"id": 7, "login": "attacker"},
			emails: []map[string]interface{}{{"email": "victim@example.com", "primary": true, "verified": false}},
		},
		{
			name:   "публичный email без доступа к /user/emails",
			user:   map[string]interface{}{"id": 7, "login": "attacker", "email": "victim@example.com"},
			emails: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGitHubTestServer(t, tt.user, tt.emails)
			p := newTestGitHubProvider(t, srv)

			profile, err := p.CompleteAuth(context.Background(), validCallback(NewVerifier()))

			assert.Nil(t, profile, "профиль с неподтвержденным email не должен возвращаться")
			assert.ErrorIs(t, err, ErrProfileIncomplete)
		})
	}
}

func TestGitHubProvider_NoEmail(t *testing.T) {
	srv := newGitHubTestServer(t, map[string]interface{}{"id": 7, "login": "ghost"}, nil)
	p := newTestGitHubProvider(t, srv)

	_, err := p.CompleteAuth(context.Background(), validCallback(NewVerifier()))
	assert.ErrorIs(t, err, ErrProfileIncomplete)
}
