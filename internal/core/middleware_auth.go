package core

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"eduplatform/internal/types"
)

// AdminKeyHeader carries the operator API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware authenticates operator requests.
//
//  1. Reads the key from the X-Admin-Key header.
//  2. Compares it with the bcrypt hash in Security.AdminAPIKeyHash.
//  3. Injects an admin Actor into the request context.
//  4. Returns 401 Unauthorized on failure with distinct error codes:
//     - auth_token_missing: no key was sent.
//     - auth_token_invalid: the key does not match, or no hash is
//     configured (the admin API is then closed to everyone).
func (s *Server) AdminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var hash string
		if s.Config != nil {
			hash = s.Config.Security.AdminAPIKeyHash.Unmask()
		}
		if hash == "" {
			s.Logger.WarnContext(r.Context(), "admin request refused, ADMIN_API_KEY_HASH is not configured",
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "admin access is not configured")
			return
		}

		key := r.Header.Get(AdminKeyHeader)
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "X-Admin-Key header is required")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			s.Logger.WarnContext(r.Context(), "admin authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
			return
		}

		ctx := types.WithActor(r.Context(), types.Actor{
			ID:     "operator",
			Type:   types.ActorTypeAdmin,
			Source: "admin_api",
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeAuthError answers 401 with a WWW-Authenticate challenge naming the
// header the key belongs in.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	w.Header().Set("WWW-Authenticate", `ApiKey header="`+AdminKeyHeader+`"`)
	Error(w, r, types.NewAppError(code, message, nil))
}
