package domain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
)

const agentTokenPrefix = "agt_"

var ErrInvalidAuthBlob = errors.New("invalid_auth_blob")

// AuthSealer encrypts credential payloads before they reach the
// connections table. The key is derived from a configured passphrase.
type AuthSealer struct {
	aead cipher.AEAD
}

func NewAuthSealer(passphrase string) (*AuthSealer, error) {
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AuthSealer{aead: aead}, nil
}

// Seal serialises the payload as JSON and encrypts it with a random nonce.
func (s *AuthSealer) Seal(payload map[string]any) ([]byte, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a sealed payload. Returns ErrInvalidAuthBlob when the
// blob is truncated or fails authentication.
func (s *AuthSealer) Open(blob []byte) (map[string]any, error) {
	if len(blob) < s.aead.NonceSize() {
		return nil, ErrInvalidAuthBlob
	}
	nonce, sealed := blob[:s.aead.NonceSize()], blob[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidAuthBlob
	}
	var payload map[string]any
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, ErrInvalidAuthBlob
	}
	return payload, nil
}

// GenerateAgentToken mints a new token for locally-managed connections.
func GenerateAgentToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return agentTokenPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// AgentTokenPreview keeps only the last four characters visible.
func AgentTokenPreview(token string) string {
	if token == "" {
		return "local-agent"
	}
	visible := token
	if len(token) > 4 {
		visible = token[len(token)-4:]
	}
	return "local-agent:*" + visible
}
