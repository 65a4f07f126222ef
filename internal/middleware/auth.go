package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zhouzirui/pollinator-bot/backend/pkg/utils"
)

// TokenQueryParam 供浏览器 WebSocket 客户端传递令牌，它们无法设置请求头。
const TokenQueryParam = "access_token"

// BearerAuth rejects requests that do not carry token as a bearer credential.
// Callers identified by X-User-ID are trusted only after this check.
func BearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := bearerToken(r)
			if got == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				utils.RespondError(w, http.StatusForbidden, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
}
