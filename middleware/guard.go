package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	credlock "github.com/credlock/credlock"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the identity injected by [Guard] for
// the current request.
func AuthResultFromContext(ctx context.Context) (*credlock.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*credlock.AuthResult)
	return res, ok
}

// Guard authenticates every request through engine.Authenticate. The
// bearer token comes from the Authorization header; on success the
// AuthResult is attached to the request context. Any failure is a plain
// 401 so callers cannot distinguish expired from revoked from unknown.
func Guard(engine *credlock.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := requestContext(r)
			res, err := engine.Authenticate(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestContext copies the request's client address and user agent
// into the context so engine audit events carry them.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = credlock.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = credlock.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
