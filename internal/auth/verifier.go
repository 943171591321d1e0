// Package auth はホスト型認証基盤が発行したアクセストークンを検証する。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew はexp/nbf判定で許容する時計のずれ。
const clockSkew = 30 * time.Second

var (
	// ErrInvalidToken は署名・期限・形式のいずれかが不正なトークン。
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingClaims は必須クレームが欠けたトークン。
	ErrMissingClaims = errors.New("missing required claims")
)

// User はトークンから得られる認証済みユーザー。
type User struct {
	ID    string
	Email string
}

// Claims はアクセストークンのクレーム。
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier はHS256で署名されたアクセストークンを検証する。
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier はVerifierを生成する。secretは認証基盤のJWT秘密鍵。
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Verify はトークンを検証し、subクレームをユーザーIDとして返す。
func (v *Verifier) Verify(tokenString string) (*User, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMissingClaims)
	}
	return &User{ID: claims.Subject, Email: claims.Email}, nil
}

// Sign はユーザーのアクセストークンを発行する。ローカル開発とテスト用。
func Sign(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
