package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName is the cookie holding the anonymous session of a browser.
const SessionCookieName = "data_analyzer_session"

const sessionCookieMaxAge = 30 * 24 * time.Hour

type contextKey int

const sessionIDKey contextKey = iota

func sessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// withSession identifies the browser by its session cookie, issuing a new one when the cookie is missing
// or invalid. The expiry is refreshed on every request.
func (m Main) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if c, err := r.Cookie(SessionCookieName); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				sessionID = c.Value
			}
		}
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   int(sessionCookieMaxAge.Seconds()),
			Expires:  time.Now().Add(sessionCookieMaxAge),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
