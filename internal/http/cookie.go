package httpx

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// CookieManager binds a session token into a signed browser cookie. The
// securecookie wrapper signature is independent of the token's own JWT
// signature: a tampered wrapper reads as no cookie at all.
type CookieManager struct {
	name   string
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

// NewCookieManager constructs a CookieManager. blockKey may be empty, in
// which case the cookie value is signed but not encrypted.
func NewCookieManager(name string, hashKey, blockKey []byte, maxAge time.Duration, secure bool) *CookieManager {
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge.Seconds()))
	return &CookieManager{name: name, codec: codec, maxAge: maxAge, secure: secure}
}

// Set attaches the signed session cookie carrying the token. MaxAge mirrors
// the token lifetime so cookie and token expire together.
func (m *CookieManager) Set(w http.ResponseWriter, token string) error {
	encoded, err := m.codec.Encode(m.name, token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Read extracts the token from the request cookie. A missing cookie or a
// wrapper that fails signature verification both return ("", false).
func (m *CookieManager) Read(req *http.Request) (string, bool) {
	cookie, err := req.Cookie(m.name)
	if err != nil {
		return "", false
	}
	var token string
	if err := m.codec.Decode(m.name, cookie.Value, &token); err != nil {
		return "", false
	}
	return token, true
}

// Clear unconditionally expires the session cookie. It succeeds whether or
// not a session existed.
func (m *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
