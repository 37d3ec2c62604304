package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// RoleDoctor is the only role admitted to the API.
const RoleDoctor = "doctor"

// Claims are the bearer token claims issued by the login service.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// DoctorDirectory confirms a token's subject is still an active doctor.
type DoctorDirectory interface {
	IsActiveDoctor(ctx context.Context, doctorID string) (bool, error)
}

// DoctorAuth admits requests carrying an HS256 bearer token with role
// "doctor". When directory is non-nil the doctor must also be active.
func DoctorAuth(secret []byte, directory DoctorDirectory, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				writeError(w, "access denied, no token provided", http.StatusUnauthorized)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.UserID == "" {
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Role != RoleDoctor {
				writeError(w, "access denied, doctor role required", http.StatusForbidden)
				return
			}

			if directory != nil {
				active, err := directory.IsActiveDoctor(r.Context(), claims.UserID)
				if err != nil {
					logger.Error("doctor lookup failed",
						zap.String("doctor_id", claims.UserID),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.Error(err))
					writeError(w, "internal server error", http.StatusInternalServerError)
					return
				}
				if !active {
					writeError(w, "invalid token or doctor not found", http.StatusUnauthorized)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithDoctorID(r.Context(), claims.UserID)))
		})
	}
}
