// Package oauth drives the Discord OAuth2 redirect flow and turns a
// successful callback into a browser session.
//
// A login moves ANONYMOUS -> AWAITING_CONSENT when BeginLogin issues a state
// token, then AWAITING_CONSENT -> AUTHENTICATED when CompleteLogin redeems it.
// Any failed check ends in REJECTED.
package oauth

import (
	"context"
	"errors"
	"fmt"

	"discord_web/pkg"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ErrRejected is matched by every *RejectedError
var ErrRejected = errors.New("oauth: authorization rejected")

// RejectedError is a login the browser should be told about
type RejectedError struct {
	Reason      string
	Description string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("oauth: rejected (%s): %s", e.Reason, e.Description)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// ErrInvalidState means the callback state was missing, unknown, expired or
// already redeemed
var ErrInvalidState = &RejectedError{Reason: "400", Description: "Invalid state"}

// Sessions is the session store used by the authorizer
type Sessions interface {
	Create(ctx context.Context, user pkg.User) (string, error)
	Lookup(ctx context.Context, token string) (pkg.User, error)
	Delete(ctx context.Context, token string) (bool, error)
}

// CallbackParams are the query parameters of the redirect back from the
// provider
type CallbackParams struct {
	State       string
	Code        string
	Error       string
	Description string
}

// Login is the outcome of a successful callback
type Login struct {
	Token string
	User  pkg.User
}

// Authorizer runs the login, callback and logout transitions
type Authorizer struct {
	states   *StateSet
	provider Provider
	sessions Sessions
	logger   zerolog.Logger
}

// NewAuthorizer wires the state set, provider and session store together
func NewAuthorizer(states *StateSet, provider Provider, sessions Sessions, logger zerolog.Logger) *Authorizer {
	return &Authorizer{
		states:   states,
		provider: provider,
		sessions: sessions,
		logger:   logger,
	}
}

// BeginLogin issues a state token and returns the consent URL
func (a *Authorizer) BeginLogin(_ context.Context) (string, error) {
	state, err := a.states.Issue()
	if err != nil {
		return "", err
	}
	return a.provider.AuthCodeURL(state), nil
}

// CompleteLogin redeems the callback and creates a session. The bearer token
// is revoked before returning and never stored.
func (a *Authorizer) CompleteLogin(ctx context.Context, params CallbackParams) (Login, error) {
	if !a.states.Redeem(params.State) {
		return Login{}, ErrInvalidState
	}
	if params.Error != "" {
		return Login{}, &RejectedError{Reason: params.Error, Description: params.Description}
	}
	if params.Code == "" {
		return Login{}, &RejectedError{Reason: "400", Description: "Missing authorization code"}
	}

	token, err := a.provider.Exchange(ctx, params.Code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return Login{}, &RejectedError{Reason: retrieveErr.ErrorCode, Description: retrieveErr.ErrorDescription}
		}
		return Login{}, err
	}

	user, fetchErr := a.provider.FetchUser(ctx, token)

	// Revoke whatever happened to the fetch; only the identity is kept.
	if err := a.provider.Revoke(ctx, token); err != nil {
		a.logger.Warn().Err(err).Msg("failed to revoke bearer token")
	}

	if fetchErr != nil {
		return Login{}, fetchErr
	}

	sessionToken, err := a.sessions.Create(ctx, user)
	if err != nil {
		return Login{}, err
	}

	a.logger.Info().Str("user_id", user.ID).Msg("user logged in")
	return Login{Token: sessionToken, User: user}, nil
}

// Logout deletes the session for token and reports whether one existed
func (a *Authorizer) Logout(ctx context.Context, token string) (bool, error) {
	return a.sessions.Delete(ctx, token)
}

// CurrentUser resolves a session token to its user
func (a *Authorizer) CurrentUser(ctx context.Context, token string) (pkg.User, error) {
	return a.sessions.Lookup(ctx, token)
}
