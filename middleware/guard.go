package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"

	"github.com/MrEthical07/authkit"
)

// DefaultCookieName is the session cookie Guard reads when none is given.
const DefaultCookieName = "authkit_session"

// AntiForgeryHeader carries the anti-forgery token on unsafe requests.
const AntiForgeryHeader = "X-Anti-Forgery-Token"

// Resumer is the engine surface Guard needs.
type Resumer interface {
	Resume(ctx context.Context, sessionID string) (*authkit.State, error)
}

type stateContextKey struct{}

// StateFromContext returns the state Guard attached to ctx.
func StateFromContext(ctx context.Context) (*authkit.State, bool) {
	st, ok := ctx.Value(stateContextKey{}).(*authkit.State)
	return st, ok
}

// ClientInfo attaches the remote address and user agent to the request
// context.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authkit.WithClientIP(r.Context(), remoteHost(r.RemoteAddr))
		ctx = authkit.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Guard resumes the session named by cookieName and stores the State in the
// request context. Requests without a live session get 401.
func Guard(engine Resumer, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			st, err := engine.Resume(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, authkit.ErrNotLoggedIn) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), stateContextKey{}, st)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAntiForgery rejects unsafe requests whose AntiForgeryHeader does
// not match the session's token. It must run inside Guard.
func RequireAntiForgery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		st, ok := StateFromContext(r.Context())
		want := st.AntiForgeryToken()
		got := r.Header.Get(AntiForgeryHeader)
		if !ok || want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
