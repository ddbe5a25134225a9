package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/gather/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUIDMismatch  = errors.New("token subject does not match uid")
)

// Claims carries the account id in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 bearer tokens issued by the account service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify returns the uid a valid token was issued for.
func (v *JWTVerifier) Verify(tokenString string) (domain.UserID, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || len(claims.Subject) > domain.MaxUserIDLen {
		return "", ErrInvalidToken
	}
	return domain.UserID(claims.Subject), nil
}

// VerifyFor additionally requires the token to belong to uid.
func (v *JWTVerifier) VerifyFor(tokenString string, uid domain.UserID) error {
	sub, err := v.Verify(tokenString)
	if err != nil {
		return err
	}
	if sub != uid {
		return ErrUIDMismatch
	}
	return nil
}

// Issue signs a token for uid. The server only verifies tokens; Issue exists
// for tooling and tests.
func (v *JWTVerifier) Issue(uid domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(uid),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// BearerToken reads the credential from the Authorization header, falling
// back to the access_token query parameter browsers use for websockets.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
