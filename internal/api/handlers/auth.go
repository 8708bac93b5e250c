package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/usecase"
)

type TokenValidator interface {
	ValidateAccessToken(token string) (*entity.JWTClaims, error)
}

type actorKey struct{}

// Authenticator кладёт в контекст telegram id пользователя из Bearer-токена.
func Authenticator(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeJSON(w, http.StatusUnauthorized, usecase.Result{Message: "Требуется авторизация"})
				return
			}
			claims, err := tokens.ValidateAccessToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, usecase.Result{Message: "Недействительный токен"})
				return
			}
			ctx := context.WithValue(r.Context(), actorKey{}, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorID - пользователь, от имени которого выполняется запрос.
func ActorID(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey{}).(int64)
	return id
}
