package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"MiniShop/pkg/kit"
)

const CookieName = "minishop.sid"

type ctxKey struct{}

// FromContext returns the session attached by Manager.Middleware.
func FromContext(ctx context.Context) (*Data, bool) {
	d, ok := ctx.Value(ctxKey{}).(*Data)
	return d, ok && d != nil
}

func WithData(ctx context.Context, d *Data) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

type Manager struct {
	Store        Store
	Tokens       *TokenMaker
	TTL          time.Duration
	CookieSecure bool
	Log          *zap.Logger
}

// Middleware loads the session named by the request cookie, or starts a new
// one when the cookie is missing, invalid or points at an expired session.
// The cookie is re-issued once half of its lifetime has passed.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, expiresAt, err := m.load(r)
		if err != nil {
			m.Log.Error("load session failed", zap.Error(err))
			kit.WriteErrorPage(w, r, http.StatusInternalServerError)
			return
		}

		if d == nil {
			d = &Data{ID: uuid.NewString()}
			if err := m.Store.Create(r.Context(), d); err != nil {
				m.Log.Error("create session failed", zap.Error(err))
				kit.WriteErrorPage(w, r, http.StatusInternalServerError)
				return
			}
			expiresAt = time.Time{}
		}

		if time.Until(expiresAt) < m.TTL/2 {
			if err := m.setCookie(w, d.ID); err != nil {
				m.Log.Error("sign session cookie failed", zap.Error(err))
				kit.WriteErrorPage(w, r, http.StatusInternalServerError)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithData(r.Context(), d)))
	})
}

func (m *Manager) load(r *http.Request) (*Data, time.Time, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, time.Time{}, nil
	}

	id, expiresAt, err := m.Tokens.Parse(c.Value)
	if err != nil {
		return nil, time.Time{}, nil
	}

	d, err := m.Store.Get(r.Context(), id)
	if err != nil {
		return nil, time.Time{}, err
	}
	return d, expiresAt, nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) error {
	tok, err := m.Tokens.New(id, m.TTL)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(m.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
