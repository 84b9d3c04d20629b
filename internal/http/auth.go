package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"paylog/internal/core"
	"paylog/internal/log"
)

type contextKey string

const userContextKey contextKey = "user"

// HeaderBotSecret carries the shared secret of the Telegram bot.
const HeaderBotSecret = "X-Telegram-Bot-Secret"

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func currentUser(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey).(core.User)
	return u, ok
}

// authed resolves the bearer token to an active user before calling next.
// Failures use the detail shape on every endpoint.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, core.User)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.fail(w, r, styleDetail, core.Unauthorized("Authentication credentials were not provided."))
			return
		}
		u, err := s.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			s.fail(w, r, styleDetail, err)
			return
		}
		ctx := withUser(r.Context(), u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
		next(w, r.WithContext(ctx), u)
	})
}

// botOnly rejects callers without the configured bot secret. With no
// secret configured every caller passes.
func (s *Server) botOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.TelegramBotSecret != "" {
			got := r.Header.Get(HeaderBotSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.TelegramBotSecret)) != 1 {
				s.fail(w, r, styleEnvelope, core.Forbidden("Invalid bot credentials."))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
