package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errInvalidCookie = errors.New("invalid cookie")

// sealer encrypts cookie payloads with AES-256-GCM.
type sealer struct {
	aead   cipher.AEAD
	secure bool
}

func newSealer(key []byte, secure bool) (*sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cookie key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &sealer{aead: aead, secure: secure}, nil
}

// seal marshals v to JSON and returns it encrypted and base64url encoded.
// The cookie name is bound in as additional data so a value cannot be
// replayed under another cookie.
func (s *sealer) seal(name string, v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling cookie: %w", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(s.aead.Seal(nonce, nonce, plaintext, []byte(name))), nil
}

// open reverses seal into v.
func (s *sealer) open(name, value string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(data) < s.aead.NonceSize() {
		return errInvalidCookie
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return errInvalidCookie
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshaling cookie: %w", err)
	}
	return nil
}

func (s *sealer) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
}

func (s *sealer) clear(w http.ResponseWriter, name string) {
	s.set(w, name, "", -1)
}
