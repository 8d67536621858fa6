package utils

import (
	"errors"
	"strconv"
	"time"

	"sayan/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "sayan-finance"

var ErrMissingSecret = errors.New("jwt secret not configured")

// GenerateToken signs an access token for the given claims. Tokens are issued
// by the identity service in production; this is used by the seed command and
// tests.
func GenerateToken(secret string, claims *models.UserClaims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	now := time.Now()
	accessClaims := models.UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(uint64(claims.UserID), 10),
		},
		UserID:      claims.UserID,
		Role:        claims.Role,
		StudentID:   claims.StudentID,
		AcademyID:   claims.AcademyID,
		Permissions: claims.Permissions,
	}
	if accessClaims.Permissions == nil {
		accessClaims.Permissions = models.GetDefaultPermissions(claims.Role)
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token string.
func ParseToken(secret, tokenStr string) (*models.UserClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenStr, &models.UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
