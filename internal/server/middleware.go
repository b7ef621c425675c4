package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"taskman/internal/auth"
	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const principalKey = "principal"

// TokenChecker отвечает на вопрос, является ли предъявленный токен
// текущим токеном пользователя в whitelist.
type TokenChecker interface {
	IsTokenCurrent(ctx context.Context, userID int64, token string) (bool, error)
}

// Authenticate разбирает заголовок Authorization, проверяет подпись JWT
// и сверяет токен с whitelist. Ошибка whitelist трактуется как отказ:
// при недоступном хранилище запрос не пропускается.
func Authenticate(tokens *auth.Provider, checker TokenChecker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errs.ErrUnauthorized.Error()})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims, err := tokens.ParseToken(raw)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errs.ErrUnauthorized.Error()})
			return
		}

		current, err := checker.IsTokenCurrent(ctx.Request.Context(), claims.UserID, raw)
		if err != nil {
			log.Errorln("Ошибка проверки whitelist:", err)
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errs.ErrUnauthorized.Error()})
			return
		}
		if !current {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errs.ErrTokenNotCurrent.Error()})
			return
		}

		ctx.Set(principalKey, claims.Principal())
		ctx.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		principal, ok := principalFrom(ctx)
		if !ok || !principal.IsAdmin() {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Error()})
			return
		}
		ctx.Next()
	}
}

// RequireAdminOrSelf пропускает администратора либо пользователя,
// обращающегося к собственному ресурсу по параметру пути userID.
func RequireAdminOrSelf() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		principal, ok := principalFrom(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Error()})
			return
		}
		if principal.IsAdmin() {
			ctx.Next()
			return
		}

		id, err := strconv.ParseInt(ctx.Param("userID"), 10, 64)
		if err != nil || principal.UserID != id {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Error()})
			return
		}
		ctx.Next()
	}
}

func principalFrom(ctx *gin.Context) (models.Principal, bool) {
	v, ok := ctx.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := v.(models.Principal)
	return principal, ok
}
