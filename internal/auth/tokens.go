package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"paylog/internal/core"
)

// TokenType separates short-lived access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

// Claims is the JWT payload.
type Claims struct {
	TokenType TokenType `json:"token_type"`
	UserID    int64     `json:"user_id"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	cfg Config
	now func() time.Time
}

func NewTokens(cfg Config) (*Tokens, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Tokens{cfg: cfg, now: time.Now}, nil
}

// Issue returns a fresh access/refresh pair for userID.
func (t *Tokens) Issue(userID int64) (TokenPair, error) {
	access, err := t.sign(userID, AccessToken, t.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(userID, RefreshToken, t.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (t *Tokens) sign(userID int64, typ TokenType, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		TokenType: typ,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.cfg.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse verifies raw and requires it to be of type want. Every failure is
// reported as an unauthorized error.
func (t *Tokens) Parse(raw string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return []byte(t.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, core.Unauthorized("Token is invalid or expired.")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, core.Unauthorized("Token is invalid or expired.")
	}
	if claims.TokenType != want {
		return nil, core.Unauthorized("Token has wrong type.")
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token.
func (t *Tokens) Refresh(raw string) (string, error) {
	claims, err := t.Parse(raw, RefreshToken)
	if err != nil {
		return "", err
	}
	return t.sign(claims.UserID, AccessToken, t.cfg.AccessTTL)
}
