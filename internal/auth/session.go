// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthFailure covers every reason a token or credential is rejected.
var ErrAuthFailure = errors.New("authentication failed")

// Identity is what a session token vouches for.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
	Guest  bool   `json:"guest,omitempty"`
}

var (
	mu         sync.RWMutex
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	// tokenTTL of zero issues tokens without an exp claim.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair. Tokens issued before a restart stop verifying.
func Init(ttl time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	setKeys(priv, pub, ttl)
	return nil
}

// InitFromPath loads a raw ed25519 key pair from disk so tokens survive restarts.
func InitFromPath(privatePath, publicPath string, ttl time.Duration) error {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 keys have the wrong size (%d, %d)", len(priv), len(pub))
	}
	setKeys(ed25519.PrivateKey(priv), ed25519.PublicKey(pub), ttl)
	return nil
}

func setKeys(priv ed25519.PrivateKey, pub ed25519.PublicKey, ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	privateKey, publicKey, tokenTTL = priv, pub, ttl
}

// IssueToken signs an EdDSA JWT carrying the identity in its claims.
func IssueToken(id Identity) (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if privateKey == nil {
		return "", errors.New("auth keys not initialized")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  id.ID,
		"name": id.Name,
		"iat":  now.Unix(),
	}
	if id.Avatar != "" {
		claims["avatar"] = id.Avatar
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	if id.Guest {
		claims["guest"] = true
	}
	if tokenTTL > 0 {
		claims["exp"] = now.Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// Authenticate verifies a token and returns the identity it carries.
func Authenticate(tokenString string) (Identity, error) {
	mu.RLock()
	key := publicKey
	mu.RUnlock()
	if key == nil {
		return Identity{}, fmt.Errorf("%w: auth keys not initialized", ErrAuthFailure)
	}

	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return Identity{}, fmt.Errorf("%w: invalid claims", ErrAuthFailure)
	}

	id := Identity{}
	if id.ID, ok = claims["sub"].(string); !ok || id.ID == "" {
		return Identity{}, fmt.Errorf("%w: missing sub", ErrAuthFailure)
	}
	id.Name, _ = claims["name"].(string)
	id.Avatar, _ = claims["avatar"].(string)
	id.Email, _ = claims["email"].(string)
	id.Guest, _ = claims["guest"].(bool)
	return id, nil
}
