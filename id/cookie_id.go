package id

// CookieName is the cookie the Bayeux handshake sets and every
// post-handshake request is expected to carry.
const CookieName = "BAYEUX_BROWSER"

// CookieId is the value of the BAYEUX_BROWSER cookie. It binds a browser
// to the ClientIds it has been issued.
type CookieId struct{ v Id }

// GenCookieId mints a fresh CookieId.
func GenCookieId() CookieId { return CookieId{Gen()} }

// ParseCookieId parses a cookie value previously rendered by String.
func ParseCookieId(s string) (CookieId, error) {
	v, err := Parse(s)
	if err != nil {
		return CookieId{}, err
	}
	return CookieId{v}, nil
}

func (c CookieId) String() string { return c.v.String() }

// Zero reports whether this is the unset CookieId.
func (c CookieId) Zero() bool { return c.v == Id{} }
