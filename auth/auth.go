package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthModule issues and validates operator tokens for the ops API
type AuthModule struct {
	JWTSecret string
	apiKey    string
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthModule(JWTSecret, apiKey string, ttl time.Duration) *AuthModule {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthModule{
		JWTSecret: JWTSecret,
		apiKey:    apiKey,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Enabled reports whether a secret is configured
func (a *AuthModule) Enabled() bool {
	return a.JWTSecret != ""
}

func (a *AuthModule) generateJWT(operator string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub": operator,
		"exp": now.Add(a.ttl).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

// LoginWithAPIKey exchanges the shared api key for a token naming operator
func (a *AuthModule) LoginWithAPIKey(operator, apiKey string) (string, error) {
	if a.apiKey == "" || subtle.ConstantTimeCompare([]byte(a.apiKey), []byte(apiKey)) != 1 {
		return "", ErrInvalidCredentials
	}
	if operator == "" {
		operator = "operator"
	}
	return a.generateJWT(operator)
}

// ValidateTokenJWT checks a token, with or without the Bearer prefix, and
// returns the operator it was issued to
func (a *AuthModule) ValidateTokenJWT(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", err
	}

	if claims, ok := parsedToken.Claims.(jwt.MapClaims); ok && parsedToken.Valid {
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return "", ErrInvalidToken
		}
		return sub, nil
	}

	return "", ErrInvalidToken
}
