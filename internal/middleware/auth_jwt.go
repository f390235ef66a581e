package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the HS256 payload accepted by AuthJWT. Exp is required.
type TokenClaims struct {
	Sub    string
	Locale string
	Exp    int64
	Issuer string
}

type wireClaims struct {
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type userKey string

const (
	subjectKey userKey = "subject"
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// SignJWT issues an HS256 token for claims.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	wc := wireClaims{
		Locale: claims.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: claims.Sub,
			Issuer:  claims.Issuer,
		},
	}
	if claims.Exp != 0 {
		wc.ExpiresAt = jwt.NewNumericDate(time.Unix(claims.Exp, 0))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, wc).SignedString([]byte(secret))
}

// VerifyJWT checks signature, algorithm and expiry against now. Only HS256 is
// accepted and a token without exp is rejected.
func VerifyJWT(secret, token string, now time.Time) (*TokenClaims, error) {
	var wc wireClaims
	_, err := jwt.ParseWithClaims(token, &wc, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errTokenExpired
	case err != nil:
		return nil, errInvalidToken
	}
	return &TokenClaims{
		Sub:    wc.Subject,
		Locale: wc.Locale,
		Exp:    wc.ExpiresAt.Unix(),
		Issuer: wc.Issuer,
	}, nil
}

// AuthJWT guards the API with a shared-secret bearer token. An empty secret
// disables the check. A locale claim overrides the negotiated locale.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(token), time.Now())
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey, claims.Sub)
			if locale, ok := matchLocaleString(claims.Locale); ok {
				ctx = context.WithValue(ctx, LocaleKey, locale)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SubjectFromContext returns the authenticated token subject, if any.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey).(string); ok {
		return v
	}
	return ""
}
