package auth

import (
	"fmt"
	"time"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTokenTTL = 2 * time.Hour

type Claims struct {
	UserID int64    `json:"userId"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

type Provider struct {
	secret []byte
	ttl    time.Duration
}

func NewProvider(secret string, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Provider{secret: []byte(secret), ttl: ttl}
}

func (p *Provider) TTL() time.Duration { return p.ttl }

func (p *Provider) CreateToken(user *models.User) (string, error) {
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, string(r))
	}

	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (p *Provider) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: неожиданный метод подписи %v", errs.ErrUnauthorized, token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, errs.ErrUnauthorized
	}
	return claims, nil
}

func (c *Claims) Principal() models.Principal {
	roles := make([]models.RoleType, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, models.RoleType(r))
	}
	return models.Principal{UserID: c.UserID, Roles: roles}
}
