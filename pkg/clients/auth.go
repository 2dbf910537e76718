package clients

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
)

// APIKeyParam is the query parameter carrying a HubSpot API key
const APIKeyParam = "hapikey"

// DefaultTokenURL is the HubSpot OAuth token endpoint
const DefaultTokenURL = "https://api.hubapi.com/oauth/v1/token"

// Authenticator attaches credentials to an outgoing request
type Authenticator interface {
	Apply(ctx context.Context, req *resty.Request) error
}

// APIKeyAuth sends the key as the hapikey query parameter
type APIKeyAuth struct {
	Key string
}

// Apply implements Authenticator
func (a APIKeyAuth) Apply(_ context.Context, req *resty.Request) error {
	req.SetQueryParam(APIKeyParam, a.Key)
	return nil
}

// BearerAuth sends a private app token in the Authorization header
type BearerAuth struct {
	Token string
}

// Apply implements Authenticator
func (a BearerAuth) Apply(_ context.Context, req *resty.Request) error {
	req.SetAuthToken(a.Token)
	return nil
}

// OAuthSettings holds the credentials of an OAuth app installation
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// OAuthAuth exchanges a refresh token for access tokens, refreshing them
// as they expire
type OAuthAuth struct {
	source oauth2.TokenSource
}

// NewOAuthAuth creates an OAuth authenticator. Token requests go through
// httpClient when it is non-nil.
func NewOAuthAuth(ctx context.Context, s OAuthSettings, httpClient *http.Client) *OAuthAuth {
	tokenURL := s.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	conf := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return &OAuthAuth{
		source: oauth2.ReuseTokenSource(nil, conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.RefreshToken})),
	}
}

// Apply implements Authenticator
func (a *OAuthAuth) Apply(_ context.Context, req *resty.Request) error {
	tok, err := a.source.Token()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to refresh access token")
	}
	req.SetAuthToken(tok.AccessToken)
	return nil
}
