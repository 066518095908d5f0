package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the user and the company a token was issued for.
type Claims struct {
	CompanyID string `json:"company_id"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the parsed subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Company returns the parsed company id.
func (c *Claims) Company() (uuid.UUID, error) {
	return uuid.Parse(c.CompanyID)
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret []byte, accessTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, accessTTL: accessTTL, refreshTTL: DefaultRefreshTTL, now: time.Now}
}

func (t *TokenIssuer) AccessTTL() time.Duration  { return t.accessTTL }
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// Issue returns a fresh access and refresh token pair.
func (t *TokenIssuer) Issue(userID, companyID uuid.UUID) (*TokenResponse, error) {
	now := t.now()
	access, err := t.sign(userID, companyID, TokenTypeAccess, now, t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(userID, companyID, TokenTypeRefresh, now, t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		Token:        access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(t.accessTTL).UTC(),
	}, nil
}

func (t *TokenIssuer) sign(userID, companyID uuid.UUID, typ string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		CompanyID: companyID.String(),
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, expiry and type of a token.
func (t *TokenIssuer) Parse(tokenString, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, typ)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	if _, err := claims.Company(); err != nil {
		return nil, fmt.Errorf("%w: bad company", ErrInvalidToken)
	}
	return claims, nil
}
