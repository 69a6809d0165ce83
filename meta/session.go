package meta

import (
	"net/http"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
	"github.com/johnjansen/bayeuxkit/session"
)

// matchSession resolves clientID against ctx's registry and confirms it
// is bound to the same browser the request's BAYEUX_BROWSER cookie
// identifies. Every meta handler past /meta/handshake relies on this
// pair (cookie, clientId) to reject requests from a session that was
// never registered, was evicted, or belongs to a different browser.
func matchSession(ctx *broker.Context, codec *auth.Codec, r *http.Request, clientID string) (*session.Session, bool) {
	if clientID == "" {
		return nil, false
	}
	cookieID, err := codec.BrowserCookie(r)
	if err != nil {
		return nil, false
	}
	sess, err := ctx.Session(clientID)
	if err != nil || sess.CookieID != cookieID.String() {
		return nil, false
	}
	return sess, true
}
