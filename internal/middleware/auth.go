package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mcloones/rewards/internal/logging"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/services"
	"github.com/spf13/viper"
)

type contextKey string

const actorKey contextKey = "actor"

var redisClient *redis.Client

// InitAuthMiddleware sets the Redis client used to look up revoked tokens. nil disables
// revocation checks.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

// ActorClaims is the token issued by the identity service
type ActorClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}

		token := parts[1]

		if revoked, err := isRevoked(r.Context(), token); err != nil {
			logging.For("AUTH").WithError(err).Error("Token revocation lookup failed")
			services.SendErrorResponse(w, "Unable to verify token", http.StatusServiceUnavailable, nil)
			return
		} else if revoked {
			services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
			return
		}

		actor, err := validateToken(token)
		if err != nil {
			logging.For("AUTH").WithError(err).Debug("Rejected token")
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor stores the authenticated actor on ctx
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by AuthMiddleware
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// isRevoked checks the blacklist written by the identity service on logout
func isRevoked(ctx context.Context, token string) (bool, error) {
	if redisClient == nil {
		return false, nil
	}
	n, err := redisClient.Exists(ctx, fmt.Sprintf("blacklist:%s", token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func validateToken(tokenString string) (models.Actor, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, err
	}
	if !token.Valid {
		return models.Actor{}, errors.New("token is not valid")
	}

	if claims.Subject == "" {
		return models.Actor{}, errors.New("token has no subject")
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return models.Actor{ID: claims.Subject, Name: claims.Name, Role: role}, nil
}
