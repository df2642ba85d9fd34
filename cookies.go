package authservice

import (
	"net/http"
	"time"
)

// Cookie names used for session tokens.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieConfig controls the attributes of session cookies. Cookies are
// always HttpOnly and SameSite=Strict.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SetAccessCookie writes the accessToken cookie.
func (c CookieConfig) SetAccessCookie(w http.ResponseWriter, token IssuedToken) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, token.Value, token.TTL))
}

// SetSessionCookies writes both session cookies.
func (c CookieConfig) SetSessionCookies(w http.ResponseWriter, pair TokenPair) {
	c.SetAccessCookie(w, pair.Access)
	http.SetCookie(w, c.cookie(RefreshTokenCookie, pair.Refresh.Value, pair.Refresh.TTL))
}

// ClearSessionCookies expires both session cookies on the client.
func (c CookieConfig) ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}
