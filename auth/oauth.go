package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuth authenticates with a bearer token obtained through the
// client-credentials flow. Tokens are refreshed transparently.
type OAuth struct {
	conf *clientcredentials.Config
	ctx  context.Context
}

func NewOAuth(ctx context.Context, clientID, clientSecret, tokenURL string) *OAuth {
	return &OAuth{
		conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
		ctx: ctx,
	}
}

func (o *OAuth) Authenticate(req *http.Request) error {
	token, err := o.conf.Token(o.ctx)
	if err != nil {
		return fmt.Errorf("OAuth.Token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}
