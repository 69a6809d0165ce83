// Package auth issues and verifies the BAYEUX_BROWSER cookie: the only
// notion of identity this server carries. It does not authenticate a
// person, only recognizes the same browser across handshakes so a
// reconnecting client can be matched against audit history.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/johnjansen/bayeuxkit/id"
)

// ErrCookieMissing is returned by BrowserCookie when the request carries
// no BAYEUX_BROWSER cookie at all.
var ErrCookieMissing = errors.New("auth: no browser cookie present")

// Codec signs and verifies the BAYEUX_BROWSER cookie with
// gorilla/securecookie, so a client cannot forge or tamper with the
// CookieId it presents on later requests.
type Codec struct {
	sc *securecookie.SecureCookie
}

// NewCodec builds a Codec from a hash key and an optional block key (nil
// disables encryption, leaving the cookie authenticated but readable).
func NewCodec(hashKey, blockKey []byte) *Codec {
	return &Codec{sc: securecookie.New(hashKey, blockKey)}
}

// BrowserCookie reads and verifies the BAYEUX_BROWSER cookie from r. It
// returns ErrCookieMissing if the request carries none, or a decode
// error if the cookie fails verification.
func (c *Codec) BrowserCookie(r *http.Request) (id.CookieId, error) {
	cookie, err := r.Cookie(id.CookieName)
	if err != nil {
		return id.CookieId{}, ErrCookieMissing
	}

	var value string
	if err := c.sc.Decode(id.CookieName, cookie.Value, &value); err != nil {
		return id.CookieId{}, err
	}

	return id.ParseCookieId(value)
}

// SetBrowserCookie signs cookieID and sets it on w, valid for one year.
func (c *Codec) SetBrowserCookie(w http.ResponseWriter, cookieID id.CookieId) error {
	encoded, err := c.sc.Encode(id.CookieName, cookieID.String())
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     id.CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// EnsureBrowserCookie returns r's existing BAYEUX_BROWSER cookie, or
// mints and sets a fresh one on w if the request carried none or carried
// one that failed verification. isNew reports which happened, so a
// handshake handler can decide whether to treat this as a returning
// browser for audit purposes.
func (c *Codec) EnsureBrowserCookie(w http.ResponseWriter, r *http.Request) (cookieID id.CookieId, isNew bool, err error) {
	cookieID, err = c.BrowserCookie(r)
	if err == nil {
		return cookieID, false, nil
	}

	cookieID = id.GenCookieId()
	if err := c.SetBrowserCookie(w, cookieID); err != nil {
		return id.CookieId{}, true, err
	}
	return cookieID, true, nil
}
