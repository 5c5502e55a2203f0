package credential

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Source mints an access token with the client-credentials grant and
// stores it as "<provider>.accessToken". Client ID and secret are read from
// credentials resolved by earlier sources.
type OAuth2Source struct {
	Provider        string
	TokenURL        string
	ClientIDKey     string
	ClientSecretKey string
	Scopes          []string

	HTTPClient *http.Client
}

func (o *OAuth2Source) Name() string { return "oauth2 " + o.Provider }

func (o *OAuth2Source) Load(ctx context.Context, prior *Store) (map[string]string, error) {
	idKey := o.ClientIDKey
	if idKey == "" {
		idKey = Key(o.Provider, "clientId")
	}
	secretKey := o.ClientSecretKey
	if secretKey == "" {
		secretKey = Key(o.Provider, "clientSecret")
	}

	clientID, ok := prior.Get(idKey)
	if !ok {
		return nil, fmt.Errorf("client id %q not found in earlier sources", idKey)
	}
	clientSecret, ok := prior.Get(secretKey)
	if !ok {
		return nil, fmt.Errorf("client secret %q not found in earlier sources", secretKey)
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	if o.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	return map[string]string{Key(o.Provider, SlotAccessToken): tok.AccessToken}, nil
}
