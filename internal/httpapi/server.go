// Package httpapi is the browser-facing surface of the api process: the
// OAuth2 login routes, session-scoped user routes and guild lookups that go
// over the bridge to the connector.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"discord_web/internal/oauth"
	"discord_web/pkg"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
)

// Auth is the login state machine used by the handlers
type Auth interface {
	BeginLogin(ctx context.Context) (string, error)
	CompleteLogin(ctx context.Context, params oauth.CallbackParams) (oauth.Login, error)
	Logout(ctx context.Context, token string) (bool, error)
	CurrentUser(ctx context.Context, token string) (pkg.User, error)
}

// Owners answers guild ownership from the owners cache
type Owners interface {
	Owner(ctx context.Context, guildID string) (string, error)
	GuildsOwnedBy(ctx context.Context, userID string) ([]string, error)
}

// Gateway asks the connector for live guild data
type Gateway interface {
	Guild(ctx context.Context, guildID string) (pkg.Guild, error)
	Member(ctx context.Context, guildID, userID string) (pkg.Member, error)
}

// Config controls cookies and static file serving
type Config struct {
	StaticDir    string
	CookieName   string
	CookieSecure bool
}

// Server holds the handler dependencies
type Server struct {
	config  Config
	auth    Auth
	owners  Owners
	gateway Gateway
	logger  zerolog.Logger
}

// NewServer creates the API server
func NewServer(config Config, auth Auth, owners Owners, gateway Gateway, logger zerolog.Logger) *Server {
	if config.CookieName == "" {
		config.CookieName = "user"
	}
	return &Server{
		config:  config,
		auth:    auth,
		owners:  owners,
		gateway: gateway,
		logger:  logger,
	}
}

// Handler builds the router: the API under /api and, when StaticDir is
// set, the single page app everywhere else
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))

	r.Route("/api", func(api chi.Router) {
		api.Use(serverHeader)
		api.NotFound(s.routeNotFound)
		api.MethodNotAllowed(s.routeNotFound)

		api.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]int{"code": http.StatusOK})
		})

		api.Route("/oauth2", func(o chi.Router) {
			o.Use(recoverWith(s.logger, func(w http.ResponseWriter, r *http.Request) {
				redirectError(w, r, "500", "Application error")
			}))
			o.Get("/login", s.handleLogin)
			o.Get("/code", s.handleCallback)
		})

		api.Group(func(g chi.Router) {
			g.Use(recoverWith(s.logger, func(w http.ResponseWriter, _ *http.Request) {
				s.writeError(w, internal(nil))
			}))
			g.Get("/user", s.handleUser)
			g.Post("/user/logout", s.handleLogout)
			g.Get("/user/guilds", s.handleUserGuilds)
			g.Get("/guild/{guild}", s.handleGuild)
			g.Get("/guild/{guild}/member", s.handleMember)
		})
	})

	if s.config.StaticDir != "" {
		r.Handle("/*", spaHandler(s.config.StaticDir))
	}

	return r
}

func (s *Server) routeNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, notFound("Route not found"))
}

func (s *Server) writeError(w http.ResponseWriter, err *goerrors.Error) {
	if err.Code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("text_code", err.TextCode).Msg("request failed")
	}
	writeJSON(w, err.Code, errorBody{Error: err.Code, Message: err.Message})
}

type errorBody struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// redirectError sends the browser back to the app with an error to show
func redirectError(w http.ResponseWriter, r *http.Request, reason, description string) {
	target := "/?error=" + url.QueryEscape(reason) + "&description=" + url.QueryEscape(description)
	http.Redirect(w, r, target, http.StatusFound)
}
