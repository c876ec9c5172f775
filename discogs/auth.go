package discogs

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/sellerwatch/config"
	"github.com/aluiziolira/sellerwatch/scraper"
)

// TokenAuth authenticates with a personal access token.
type TokenAuth struct {
	Token string
}

// AuthHeader implements scraper.Authenticator.
func (a TokenAuth) AuthHeader(string, string) (string, error) {
	if strings.TrimSpace(a.Token) == "" {
		return "", nil
	}
	return "Discogs token=" + a.Token, nil
}

// OAuth1 signs requests with the PLAINTEXT OAuth 1.0a method Discogs accepts over TLS.
type OAuth1 struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string

	now   func() time.Time
	nonce func() string
}

// NewOAuth1 builds an OAuth1 authenticator.
func NewOAuth1(consumerKey, consumerSecret, token, tokenSecret string) *OAuth1 {
	return &OAuth1{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Token:          token,
		TokenSecret:    tokenSecret,
		now:            time.Now,
		nonce:          func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// AuthHeader implements scraper.Authenticator.
func (a *OAuth1) AuthHeader(string, string) (string, error) {
	if a.ConsumerKey == "" || a.Token == "" {
		return "", fmt.Errorf("oauth1: consumer key and token are required")
	}
	params := map[string]string{
		"oauth_consumer_key":     a.ConsumerKey,
		"oauth_nonce":            a.nonce(),
		"oauth_signature":        url.QueryEscape(a.ConsumerSecret) + "&" + url.QueryEscape(a.TokenSecret),
		"oauth_signature_method": "PLAINTEXT",
		"oauth_timestamp":        strconv.FormatInt(a.now().Unix(), 10),
		"oauth_token":            a.Token,
		"oauth_version":          "1.0",
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, params[k]))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// NewAuthenticator picks OAuth1 when consumer credentials are configured,
// a personal token otherwise, and nil for anonymous access.
func NewAuthenticator(cfg *config.Config) scraper.Authenticator {
	if cfg.ConsumerKey != "" {
		return NewOAuth1(cfg.ConsumerKey, cfg.ConsumerSecret, cfg.OAuthToken, cfg.OAuthSecret)
	}
	if cfg.Token != "" {
		return TokenAuth{Token: cfg.Token}
	}
	return nil
}
