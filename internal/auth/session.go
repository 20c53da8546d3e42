// internal/auth/session.go

// Package auth issues and verifies the service's EdDSA-signed JWTs and hashes
// user passwords.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Token kinds, carried in the "kind" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var ErrWrongTokenKind = errors.New("wrong token kind")

type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with one ed25519 key pair.
type Issuer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer generates a fresh key pair. Tokens do not survive a restart.
func NewIssuer(accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return newIssuer(priv, pub, accessTTL, refreshTTL), nil
}

// NewIssuerFromFiles reads a raw ed25519 key pair from disk.
func NewIssuerFromFiles(privatePath, publicPath string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 key files have the wrong size")
	}
	return newIssuer(priv, pub, accessTTL, refreshTTL), nil
}

// LoadIssuer reads the key pair when both paths are set and otherwise falls back
// to a generated one, warning that issued tokens will not outlive the process.
func LoadIssuer(privatePath, publicPath string, accessTTL, refreshTTL time.Duration, logger *logrus.Logger) (*Issuer, error) {
	if privatePath != "" && publicPath != "" {
		return NewIssuerFromFiles(privatePath, publicPath, accessTTL, refreshTTL)
	}
	if privatePath != "" || publicPath != "" {
		logger.Warn("only one of JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH is set, ignoring it")
	}
	logger.Warn("no JWT key pair configured, using an ephemeral key: sessions will not survive a restart")
	return NewIssuer(accessTTL, refreshTTL)
}

func newIssuer(priv ed25519.PrivateKey, pub ed25519.PublicKey, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		private:    priv,
		public:     pub,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *Issuer) sign(userID uuid.UUID, kind string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID.String(),
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.private)
}

func (i *Issuer) CreateAccess(userID uuid.UUID) (string, error) {
	return i.sign(userID, KindAccess, i.AccessTTL)
}

func (i *Issuer) CreateRefresh(userID uuid.UUID) (string, error) {
	return i.sign(userID, KindRefresh, i.RefreshTTL)
}

// Authenticate verifies token and returns its subject when it is of the given kind.
func (i *Issuer) Authenticate(token, kind string) (uuid.UUID, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.public, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if claims.Kind != kind {
		return uuid.Nil, ErrWrongTokenKind
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sub in jwt: %w", err)
	}
	return userID, nil
}
