package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

const (
	CookieName = "portfolio_session"
	LoginPath  = "/admin/login"
)

type claims struct {
	Email       string `json:"email"`
	AccessToken string `json:"sat,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens. The token travels in an
// HttpOnly cookie, or in an Authorization bearer header for API clients.
type Sessions struct {
	secret     []byte
	ttl        time.Duration
	adminEmail string
	secure     bool
	logger     *zap.Logger
	now        func() time.Time
}

func NewSessions(secret string, ttl time.Duration, adminEmail string, secure bool, logger *zap.Logger) *Sessions {
	return &Sessions{
		secret:     []byte(secret),
		ttl:        ttl,
		adminEmail: adminEmail,
		secure:     secure,
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

// Token signs a session token for id. The session ends no later than the
// store access token it carries.
func (s *Sessions) Token(id Identity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	if !id.AccessExpiresAt.IsZero() && id.AccessExpiresAt.Before(exp) {
		exp = id.AccessExpiresAt
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:       id.Email,
		AccessToken: id.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error generating token: %w", err)
	}
	return signed, exp, nil
}

// Issue signs a token for id and sets it as the session cookie.
func (s *Sessions) Issue(w http.ResponseWriter, id Identity) (string, error) {
	signed, exp, err := s.Token(id)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return signed, nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Parse verifies the request's session token.
func (s *Sessions) Parse(r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			return Identity{}, fmt.Errorf("%w: no session", apperrors.ErrUnauthorized)
		}
		raw = c.Value
	}

	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	return Identity{ID: cl.Subject, Email: cl.Email, AccessToken: cl.AccessToken}, nil
}

func (s *Sessions) IsAdmin(id Identity) bool {
	return id.Email != "" && sameEmail(id.Email, s.adminEmail)
}

// Authenticate attaches the session identity, if any, to the request
// context. It never rejects a request.
func (s *Sessions) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := s.Parse(r); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin lets only the configured admin through. Browsers are sent to
// the login page, API callers get a 401. The admin's store token, if any, is
// put on the context for the writes that follow.
func (s *Sessions) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Parse(r)
		if err == nil && !s.IsAdmin(id) {
			err = fmt.Errorf("%w: %s is not an admin", apperrors.ErrUnauthorized, id.Email)
		}
		if err != nil {
			s.logger.Debug("admin route rejected", zap.String("path", r.URL.Path), zap.Error(err))
			s.reject(w, r)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		ctx = store.WithAccessToken(ctx, id.AccessToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Sessions) reject(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && wantsHTML(r) {
		target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
