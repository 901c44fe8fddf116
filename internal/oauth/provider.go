package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"discord_web/pkg"

	"golang.org/x/oauth2"
)

// DefaultHTTPTimeout is the default timeout for provider requests
const DefaultHTTPTimeout = 30 * time.Second

// Provider is the external authorization server
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUser(ctx context.Context, token *oauth2.Token) (pkg.User, error)
	Revoke(ctx context.Context, token *oauth2.Token) error
}

// ProviderConfig describes the Discord OAuth2 application
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	APIBaseURL   string // e.g. https://discord.com/api/v10
	HTTPClient   *http.Client
}

// DiscordProvider implements Provider against the Discord API
type DiscordProvider struct {
	config     *oauth2.Config
	apiBase    string
	httpClient *http.Client
}

// NewDiscordProvider builds the authorize/token/revoke endpoints from the
// API base URL.
func NewDiscordProvider(cfg ProviderConfig) *DiscordProvider {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBase:    base,
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the consent page URL carrying state
func (p *DiscordProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a bearer token
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// FetchUser reads /users/@me with the bearer token
func (p *DiscordProvider) FetchUser(ctx context.Context, token *oauth2.Token) (pkg.User, error) {
	var user pkg.User

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/users/@me", nil)
	if err != nil {
		return user, fmt.Errorf("failed to build user request: %w", err)
	}

	resp, err := p.config.Client(p.withClient(ctx), token).Do(req)
	if err != nil {
		return user, fmt.Errorf("failed to fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return user, fmt.Errorf("failed to fetch user: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return user, fmt.Errorf("failed to decode user: %w", err)
	}
	if user.ID == "" {
		return user, fmt.Errorf("failed to fetch user: response has no id")
	}
	return user, nil
}

// Revoke invalidates the access token at the provider
func (p *DiscordProvider) Revoke(ctx context.Context, token *oauth2.Token) error {
	form := url.Values{
		"token":           {token.AccessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {p.config.ClientID},
		"client_secret":   {p.config.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/oauth2/token/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token: status %d", resp.StatusCode)
	}
	return nil
}

func (p *DiscordProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
