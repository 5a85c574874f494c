package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LocalOwner is the session owner used when Basic Auth is disabled.
const LocalOwner = "local"

type ownerKey struct{}

// WithOwner stores the session owner in ctx.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the session owner of the request, LocalOwner if none was set.
func OwnerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey{}).(string); ok && owner != "" {
		return owner
	}
	return LocalOwner
}

// BasicAuth checks HTTP Basic credentials against one user and a bcrypt hash.
type BasicAuth struct {
	user   string
	hash   []byte
	realm  string
	logger *zap.Logger
}

func NewBasicAuth(user, passwordHash string, logger *zap.Logger) (*BasicAuth, error) {
	if user == "" || passwordHash == "" {
		return nil, fmt.Errorf("basic auth needs a user and a password hash")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("password hash: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BasicAuth{user: user, hash: []byte(passwordHash), realm: "cycle-book", logger: logger}, nil
}

// HashPassword creates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether user and password match the configured credentials.
func (a *BasicAuth) Verify(user, password string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	passMatch := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userMatch && passMatch
}

// Middleware rejects requests without valid credentials and stores the user as session owner.
func (a *BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.Verify(user, pass) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", a.realm))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			a.logger.Warn("failed auth attempt", zap.String("remote", r.RemoteAddr), zap.String("user", user))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), user)))
	})
}
