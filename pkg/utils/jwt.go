package utils

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "social-auto-publisher"

func GenerateToken(secretKey string, clientID int64, role string, tokenDuration time.Duration) (string, error) {
	now := time.Now()
	claims := transfer.CustomClaims{
		ClientID: clientID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(clientID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return signedToken, nil
}

func ValidateToken(secretKey, tokenString string) (*transfer.CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &transfer.CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if claims, ok := token.Claims.(*transfer.CustomClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
