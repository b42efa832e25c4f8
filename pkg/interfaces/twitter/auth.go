package twitter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mrjones/oauth"
)

const (
	RequestTokenURL   = "https://api.twitter.com/oauth/request_token"
	AuthorizeTokenURL = "https://api.twitter.com/oauth/authorize"
	AccessTokenURL    = "https://api.twitter.com/oauth/access_token"
)

type Authenticator struct {
	client      *http.Client
	bearerToken string
}

// NewAuthenticator builds an HTTP client for the configured credentials:
// an OAuth 1.0a signing client when user credentials are present,
// otherwise a plain client with app-only bearer authentication.
func NewAuthenticator(config *TwitterConfig) (*Authenticator, error) {
	if config.HasWriteAccess() {
		return newUserAuthenticator(
			config.ConsumerKey,
			config.ConsumerSecret,
			config.AccessToken,
			config.AccessTokenSecret,
		)
	}

	if config.BearerToken != "" {
		return &Authenticator{
			client:      &http.Client{Timeout: 30 * time.Second},
			bearerToken: config.BearerToken,
		}, nil
	}

	return nil, fmt.Errorf("either OAuth 1.0a credentials or Bearer token must be provided")
}

func newUserAuthenticator(consumerKey, consumerSecret, accessToken, accessTokenSecret string) (*Authenticator, error) {
	consumer := oauth.NewConsumer(consumerKey, consumerSecret, oauth.ServiceProvider{
		RequestTokenUrl:   RequestTokenURL,
		AuthorizeTokenUrl: AuthorizeTokenURL,
		AccessTokenUrl:    AccessTokenURL,
	})
	consumer.HttpClient = &http.Client{Timeout: 30 * time.Second}

	token := oauth.AccessToken{
		Token:  accessToken,
		Secret: accessTokenSecret,
	}

	client, err := consumer.MakeHttpClient(&token)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth client: %w", err)
	}

	return &Authenticator{client: client}, nil
}

func (a *Authenticator) GetClient() *http.Client {
	return a.client
}

// SetAuthHeader adds bearer auth when running app-only; the OAuth 1.0a
// client signs requests itself.
func (a *Authenticator) SetAuthHeader(req *http.Request) {
	if a.bearerToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.bearerToken))
	}
}
