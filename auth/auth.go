package auth

import (
	"net/http"
)

// Authenticator decorates an outgoing request with credentials. Plugins treat
// it as opaque and treat nil as "unauthenticated".
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// Basic authenticates with HTTP basic auth
type Basic struct {
	Username string
	Password string
}

func (b *Basic) Authenticate(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Header authenticates by adding a static header (e.g. an api key)
type Header struct {
	Key   string
	Value string
}

func (h *Header) Authenticate(req *http.Request) error {
	req.Header.Set(h.Key, h.Value)
	return nil
}
