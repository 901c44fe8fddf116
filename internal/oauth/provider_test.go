package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newDiscordStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var revoked []string

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid \"code\" in request."}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"bearer-1","token_type":"Bearer","expires_in":604800,"scope":"identify"}`))
	})
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bearer-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","username":"wumpus","global_name":"Wumpus","avatar":"abc"}`))
	})
	mux.HandleFunc("/oauth2/token/revoke", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		revoked = append(revoked, r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &revoked
}

func newTestProvider(base string) *DiscordProvider {
	return NewDiscordProvider(ProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8000/api/oauth2/code",
		Scopes:       []string{"identify"},
		APIBaseURL:   base + "/",
	})
}

func TestAuthCodeURL(t *testing.T) {
	provider := newTestProvider("https://discord.example/api")

	raw := provider.AuthCodeURL("state-1")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/api/oauth2/authorize", parsed.Path)
	query := parsed.Query()
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client", query.Get("client_id"))
	assert.Equal(t, "identify", query.Get("scope"))
	assert.Equal(t, "state-1", query.Get("state"))
	assert.Equal(t, "consent", query.Get("prompt"))
	assert.Equal(t, "http://localhost:8000/api/oauth2/code", query.Get("redirect_uri"))
}

func TestExchangeFetchRevoke(t *testing.T) {
	server, revoked := newDiscordStub(t)
	provider := newTestProvider(server.URL)
	ctx := context.Background()

	token, err := provider.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "bearer-1", token.AccessToken)

	user, err := provider.FetchUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "wumpus", user.Username)
	assert.Equal(t, "Wumpus", user.GlobalName)

	require.NoError(t, provider.Revoke(ctx, token))
	assert.Equal(t, []string{"bearer-1"}, *revoked)
}

func TestExchangeRejectedCode(t *testing.T) {
	server, _ := newDiscordStub(t)
	provider := newTestProvider(server.URL)

	_, err := provider.Exchange(context.Background(), "bad-code")
	require.Error(t, err)

	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
}

func TestFetchUserUnauthorized(t *testing.T) {
	server, _ := newDiscordStub(t)
	provider := newTestProvider(server.URL)

	_, err := provider.FetchUser(context.Background(), &oauth2.Token{AccessToken: "wrong", TokenType: "Bearer"})
	require.ErrorContains(t, err, "status 401")
}
