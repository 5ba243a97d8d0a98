package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"

	"github.com/learnhub/learnhub/pkg/logger"
)

// TokenVerifier turns a session token into the user id it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// ClerkVerifier verifies Clerk session tokens.
type ClerkVerifier struct{}

// NewClerkVerifier sets the Clerk secret key for the process and returns a verifier.
func NewClerkVerifier(secretKey string) *ClerkVerifier {
	clerk.SetKey(secretKey)
	return &ClerkVerifier{}
}

// Verify implements TokenVerifier.
func (ClerkVerifier) Verify(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the token subject as the user id.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Verifier == nil {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication is not configured", nil)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authorization header required", nil)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || strings.TrimSpace(token) == "" {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Use 'Bearer <token>'", nil)
			return
		}

		userID, err := s.deps.Verifier.Verify(r.Context(), token)
		if err != nil {
			logger.FromContext(r.Context()).Debug("token verification failed", logger.Err(err))
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid session token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(logger.UserID(userID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
