package middleware

import (
	"net/http"
	"strings"

	"catalog-service/internal/model"
	"catalog-service/pkg/jwtutil"
	"catalog-service/pkg/logger"
	"catalog-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const actorKey = "actor"

// AuthMiddleware validates the JWT token and stores the calling actor
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Warn("Missing Authorization header")
			prometheus.RecordAuthAttempt(false)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format")
			prometheus.RecordAuthAttempt(false)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Warn("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthAttempt(false)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		role, err := model.ParseRole(claims.Role)
		if err != nil {
			log.Warn("Token carries an unknown role",
				zap.Uint("user_id", claims.UserID),
				zap.String("role", claims.Role))
			prometheus.RecordAuthAttempt(false)
			return c.JSON(http.StatusForbidden, echo.Map{"error": "role is not allowed to use the catalog"})
		}

		actor := model.Actor{
			ID:      claims.UserID,
			Name:    claims.Name,
			Address: claims.Address,
			Email:   claims.Email,
			Role:    role,
		}
		c.Set(actorKey, actor)
		c.Set("user_id", actor.ID)

		// Carry the enriched logger into the request context for the service layer
		log = log.With(zap.Uint("user_id", actor.ID), zap.String("role", string(role)))
		c.Set("logger", log)
		c.SetRequest(c.Request().WithContext(logger.WithLogger(c.Request().Context(), log)))

		prometheus.RecordAuthAttempt(true)
		return next(c)
	}
}

// ActorFromContext returns the actor stored by AuthMiddleware
func ActorFromContext(c echo.Context) (model.Actor, bool) {
	actor, ok := c.Get(actorKey).(model.Actor)
	return actor, ok
}
