package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
)

type userIDKey struct{}

// ErrorWriter отвечает на отклонённый запрос; транспорт передаёт сюда
// свою функцию записи конверта.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// Middleware требует заголовок "Authorization: Bearer <token>".
func Middleware(verifier Verifier, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				writeErr(w, r, apperror.New(apperror.Unauthenticated, "missing bearer token"))
				return
			}

			userID, err := verifier.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("auth: token rejected")
				writeErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// RequireAdmin пропускает только указанных пользователей. Ставится после Middleware.
func RequireAdmin(adminIDs []int64, writeErr ErrorWriter) func(http.Handler) http.Handler {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				writeErr(w, r, apperror.New(apperror.Unauthenticated, "missing bearer token"))
				return
			}
			if !admins[userID] {
				log.Warn().Int64("user_id", userID).Str("path", r.URL.Path).Msg("auth: admin route refused")
				writeErr(w, r, apperror.New(apperror.PermissionDenied, "operation requires an administrator"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
