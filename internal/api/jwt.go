package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken creates an HS256 token whose subject is the owner id.
func SignToken(secret, ownerID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": ownerID,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
		"iss": "croplens",
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// parseToken validates the token and returns its subject.
func parseToken(secret, tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("no subject")
	}
	return sub, nil
}
