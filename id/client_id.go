package id

// ClientId is the handle minted on a successful /meta/handshake. It is
// echoed by the client in every subsequent request and is distinct at
// compile time from CookieId even though both wrap an Id.
type ClientId struct{ v Id }

// GenClientId mints a fresh ClientId.
func GenClientId() ClientId { return ClientId{Gen()} }

// ParseClientId parses a client id previously rendered by String.
func ParseClientId(s string) (ClientId, error) {
	v, err := Parse(s)
	if err != nil {
		return ClientId{}, err
	}
	return ClientId{v}, nil
}

func (c ClientId) String() string { return c.v.String() }

// Zero reports whether this is the unset ClientId.
func (c ClientId) Zero() bool { return c.v == Id{} }
