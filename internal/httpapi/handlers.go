package httpapi

import (
	"errors"
	"net/http"

	"discord_web/internal/oauth"
	"discord_web/internal/storage"
	"discord_web/pkg"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)

	target, err := s.auth.BeginLogin(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin login")
		redirectError(w, r, "500", "Application error")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	login, err := s.auth.CompleteLogin(r.Context(), oauth.CallbackParams{
		State:       query.Get("state"),
		Code:        query.Get("code"),
		Error:       query.Get("error"),
		Description: query.Get("error_description"),
	})
	if err != nil {
		s.clearSession(w)
		var rejected *oauth.RejectedError
		if errors.As(err, &rejected) {
			s.logger.Info().Str("reason", rejected.Reason).Msg("login rejected")
			redirectError(w, r, rejected.Reason, rejected.Description)
			return
		}
		s.logger.Error().Err(err).Msg("failed to complete login")
		redirectError(w, r, "500", "Application error")
		return
	}

	// Replaces any previous session cookie.
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    login.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if token == "" {
		s.writeError(w, unauthorized("Unauthorized"))
		return
	}

	deleted, err := s.auth.Logout(r.Context(), token)
	if err != nil {
		s.writeError(w, toAPIError(err))
		return
	}
	if !deleted {
		s.writeError(w, unauthorized("Unauthorized (no such session)"))
		return
	}

	s.clearSession(w)
	writeJSON(w, http.StatusOK, map[string]any{"code": http.StatusOK, "message": "Logged out"})
}

func (s *Server) handleUserGuilds(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	guilds, err := s.owners.GuildsOwnedBy(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, toAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, guilds)
}

func (s *Server) handleGuild(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	guildID := chi.URLParam(r, "guild")

	owner, err := s.owners.Owner(r.Context(), guildID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, unauthorized("Unauthorized"))
		return
	case err != nil:
		s.writeError(w, toAPIError(err))
		return
	case owner != user.ID:
		s.writeError(w, unauthorized("Unauthorized"))
		return
	}

	guild, err := s.gateway.Guild(r.Context(), guildID)
	if err != nil {
		s.writeError(w, toAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, guild)
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	member, err := s.gateway.Member(r.Context(), chi.URLParam(r, "guild"), user.ID)
	if err != nil {
		s.writeError(w, toAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// requireUser resolves the session cookie, writing 403 when there is none
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (pkg.User, bool) {
	user, err := s.auth.CurrentUser(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeError(w, toAPIError(err))
		return pkg.User{}, false
	}
	return user, true
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
