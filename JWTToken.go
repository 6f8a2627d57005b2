package main

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

var (
	// ErrCantInsert is returned when attempting to insert on a socket that doesn't have that capability
	ErrCantInsert = errors.New("can't insert")

	// ErrCantQuery is returned when attempting to query on a socket that doesn't have that capability
	ErrCantQuery = errors.New("can't query")

	// ErrCantConsume is returned when attempting to move a view on a socket that doesn't have that capability
	ErrCantConsume = errors.New("can't consume")

	// ErrInvalidCapabilities is returned if the set of capabilities is not coherent
	ErrInvalidCapabilities = errors.New("invalid capabilities")

	// ErrInvalidJWTToken is returned if the token isn't valid
	ErrInvalidJWTToken = errors.New("invalid JWT token")
)

// JWTTokenCaps allows specification of Capabilities for this socket
type JWTTokenCaps struct {
	Insert  bool       `json:"insert"`
	Query   bool       `json:"query"`
	Consume bool       `json:"consume"`
	MaxView [2]float64 `json:"maxView"`
	HTTP    bool       `json:"http"`
}

func (cap *JWTTokenCaps) check() error {
	if !cap.Insert && !cap.Query && !cap.Consume {
		return ErrInvalidCapabilities
	}
	return nil
}

// JWTToken describes the format of JWT Tokens
type JWTToken struct {
	jwt.StandardClaims

	ViewID string `json:"viewId"`

	Capabilities JWTTokenCaps `json:"caps"`
}

func parseJWTToken(b64tok string) (*JWTToken, error) {

	var jwttoken JWTToken

	token, err := jwt.ParseWithClaims(b64tok, &jwttoken, func(token *jwt.Token) (interface{}, error) {
		// Don't forget to validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(SecretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTToken); ok && token.Valid {
		if err := claims.Capabilities.check(); err != nil {
			return nil, err
		}
		if claims.Capabilities.MaxView[0] == 0 {
			claims.Capabilities.MaxView = [2]float64{1, 1} // default to [1,1]
		}
		return claims, nil
	}
	return nil, ErrInvalidJWTToken
}

// newJWTToken signs a token with the given view id and capabilities.
// A ttl of 0 issues a token that never expires.
func newJWTToken(viewID string, caps JWTTokenCaps, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTToken{
		StandardClaims: jwt.StandardClaims{IssuedAt: now.Unix()},
		ViewID:         viewID,
		Capabilities:   caps,
	}
	if ttl != 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(SecretKey))
}
