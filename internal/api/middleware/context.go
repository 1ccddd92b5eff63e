package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const clientKeyKey contextKey = "client_key"

func SetClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyKey, key)
}

func GetClientKey(r *http.Request) (string, bool) {
	key, ok := r.Context().Value(clientKeyKey).(string)
	return key, ok && key != ""
}

// ClientKey records the caller's IP as its rate-limit identity. Run it after
// chi's RealIP so forwarded addresses are honoured.
func ClientKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(SetClientKey(r.Context(), host)))
	})
}
