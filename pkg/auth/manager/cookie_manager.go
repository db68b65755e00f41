package manager

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	// AuthTokenCookie хранит JWT при доставке токена через cookie
	AuthTokenCookie = "auth_token"
	// SessionCookie хранит подписанный идентификатор серверной сессии
	SessionCookie = "sid"
	// OAuthStateCookie и OAuthVerifierCookie живут только на время OAuth-рукопожатия
	OAuthStateCookie    = "oauth_state"
	OAuthVerifierCookie = "oauth_verifier"

	oauthCookieMaxAge = 10 * time.Minute
)

// ErrCookieNotFound возвращается, когда кука отсутствует или подпись не сходится
var ErrCookieNotFound = errors.New("cookie not found")

// CookieManager управляет auth-, session- и OAuth-куками
type CookieManager struct {
	cookiePath     string
	cookieDomain   string
	cookieSecure   bool
	cookieSameSite http.SameSite
	maxAge         time.Duration
	sessionSecret  []byte
}

// NewCookieManager создает менеджер кук.
// secure выставляется в production, maxAge задает срок жизни auth- и session-кук.
func NewCookieManager(domain string, secure bool, maxAge time.Duration, sessionSecret string) *CookieManager {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &CookieManager{
		cookiePath:     "/",
		cookieDomain:   domain,
		cookieSecure:   secure,
		cookieSameSite: http.SameSiteLaxMode,
		maxAge:         maxAge,
		sessionSecret:  []byte(sessionSecret),
	}
}

func (m *CookieManager) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.cookiePath,
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: m.cookieSameSite,
		MaxAge:   maxAge,
	})
}

func (m *CookieManager) get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", ErrCookieNotFound
	}
	return cookie.Value, nil
}

// SetAuthTokenCookie устанавливает JWT в HttpOnly куку
func (m *CookieManager) SetAuthTokenCookie(w http.ResponseWriter, token string) {
	m.set(w, AuthTokenCookie, token, int(m.maxAge.Seconds()))
}

// GetAuthTokenFromCookie получает JWT из куки
func (m *CookieManager) GetAuthTokenFromCookie(r *http.Request) (string, error) {
	return m.get(r, AuthTokenCookie)
}

// ClearAuthTokenCookie удаляет куку с JWT
func (m *CookieManager) ClearAuthTokenCookie(w http.ResponseWriter) {
	m.set(w, AuthTokenCookie, "", -1)
}

// SetSessionCookie устанавливает подписанный идентификатор сессии
func (m *CookieManager) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	m.set(w, SessionCookie, m.sign(sessionID), int(m.maxAge.Seconds()))
}

// GetSessionIDFromCookie возвращает идентификатор сессии, если подпись верна
func (m *CookieManager) GetSessionIDFromCookie(r *http.Request) (string, error) {
	raw, err := m.get(r, SessionCookie)
	if err != nil {
		return "", err
	}
	id, ok := m.unsign(raw)
	if !ok {
		return "", ErrCookieNotFound
	}
	return id, nil
}

// ClearSessionCookie удаляет куку сессии
func (m *CookieManager) ClearSessionCookie(w http.ResponseWriter) {
	m.set(w, SessionCookie, "", -1)
}

// SetOAuthCookies сохраняет state и PKCE verifier на время рукопожатия
func (m *CookieManager) SetOAuthCookies(w http.ResponseWriter, state, verifier string) {
	maxAge := int(oauthCookieMaxAge.Seconds())
	m.set(w, OAuthStateCookie, state, maxAge)
	m.set(w, OAuthVerifierCookie, verifier, maxAge)
}

// GetOAuthCookies возвращает сохраненные state и verifier
func (m *CookieManager) GetOAuthCookies(r *http.Request) (state, verifier string, err error) {
	if state, err = m.get(r, OAuthStateCookie); err != nil {
		return "", "", err
	}
	if verifier, err = m.get(r, OAuthVerifierCookie); err != nil {
		return "", "", err
	}
	return state, verifier, nil
}

// ClearOAuthCookies удаляет куки рукопожатия
func (m *CookieManager) ClearOAuthCookies(w http.ResponseWriter) {
	m.set(w, OAuthStateCookie, "", -1)
	m.set(w, OAuthVerifierCookie, "", -1)
}

func (m *CookieManager) sign(value string) string {
	mac := hmac.New(sha256.New, m.sessionSecret)
	mac.Write([]byte(value))
	return value + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *CookieManager) unsign(signed string) (string, bool) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 {
		return "", false
	}
	value := signed[:idx]
	expected := m.sign(value)
	if !hmac.Equal([]byte(expected), []byte(signed)) {
		return "", false
	}
	return value, true
}
