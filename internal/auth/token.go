package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of an access token.
type Claims struct {
	Role   string `json:"role"`
	UserID uint   `json:"user_id"`
	jwt.RegisteredClaims
}

// Identity is the caller rebuilt from a verified token.
type Identity struct {
	Subject string
	Role    string
	OwnerID uint
}

// Issuer signs HS256 access tokens.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer returns an issuer for the given secret and validity window.
func NewIssuer(secret string, expiry time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Expiry is the validity window of issued tokens.
func (i *Issuer) Expiry() time.Duration { return i.expiry }

// Issue signs a token for the subject.
func (i *Issuer) Issue(subject, role string, ownerID uint) (string, error) {
	now := i.now()
	claims := Claims{
		Role:   role,
		UserID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ParseToken verifies signature, algorithm and expiry and returns the identity.
func ParseToken(tokenString string, secret []byte) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}
	return Identity{Subject: claims.Subject, Role: claims.Role, OwnerID: claims.UserID}, nil
}

// String renders the identity for logs.
func (id Identity) String() string {
	return fmt.Sprintf("%s(%s#%d)", id.Subject, id.Role, id.OwnerID)
}
