package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenIssuer is set on every device token and checked on parse.
const tokenIssuer = "fleetrelay"

// defaultDeviceTokenTTL applies when the caller passes a non-positive TTL.
const defaultDeviceTokenTTL = 30 * 24 * time.Hour

// DeviceClaims extends JWT standard claims with the token's role.
// The device id is carried in the subject.
type DeviceClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// DeviceID returns the device id the token was issued to.
func (c *DeviceClaims) DeviceID() string {
	return c.Subject
}

// GenerateDeviceToken creates a signed HS256 token for a registered device.
func GenerateDeviceToken(deviceID, secret string, ttl time.Duration) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: empty device id", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = defaultDeviceTokenTTL
	}

	now := time.Now()
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: RoleDevice,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}

// ParseDeviceToken validates a device token and returns its claims.
// It checks the signature, expiry, issuer, subject and role.
func ParseDeviceToken(tokenString, secret string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if claims.Role != RoleDevice {
		return nil, fmt.Errorf("%w: not a device token", ErrTokenInvalid)
	}

	return claims, nil
}
