package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const unsubscribeTokenType = "unsubscribe"

// UnsubscribeClaims are embedded in every unsubscribe link so the public
// endpoint can resolve the tenant and campaign item without a session.
type UnsubscribeClaims struct {
	OrganizationID string `json:"org_id"`
	CampaignItemID string `json:"item_id"`
	TokenType      string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies unsubscribe tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl == 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) GenerateUnsubscribeToken(organizationID string, itemID uuid.UUID) (string, error) {
	now := time.Now()
	claims := UnsubscribeClaims{
		OrganizationID: organizationID,
		CampaignItemID: itemID.String(),
		TokenType:      unsubscribeTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) VerifyUnsubscribeToken(tokenString string) (*UnsubscribeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UnsubscribeClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid unsubscribe token: %w", err)
	}

	claims, ok := token.Claims.(*UnsubscribeClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid unsubscribe token claims")
	}
	if claims.TokenType != unsubscribeTokenType {
		return nil, fmt.Errorf("unexpected token type %q", claims.TokenType)
	}

	return claims, nil
}
