package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

const (
	// StateCookieName is the name of the cookie carrying the login state.
	StateCookieName = "bulkvm_oidc_state"
	stateTTL        = 5 * time.Minute
)

// StateData is the state and nonce of one login attempt.
type StateData struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StateStore keeps the login state in an encrypted cookie between the
// redirect to the provider and the callback.
type StateStore struct {
	sealer *sealer
}

// NewStateStore creates a state store. key must be 32 bytes.
func NewStateStore(key []byte, secure bool) (*StateStore, error) {
	s, err := newSealer(key, secure)
	if err != nil {
		return nil, err
	}
	return &StateStore{sealer: s}, nil
}

// Generate creates a fresh state and nonce and sets the cookie.
func (ss *StateStore) Generate(w http.ResponseWriter) (*StateData, error) {
	state, err := randomString(32)
	if err != nil {
		return nil, err
	}
	nonce, err := randomString(32)
	if err != nil {
		return nil, err
	}
	data := &StateData{State: state, Nonce: nonce, ExpiresAt: time.Now().Add(stateTTL)}

	value, err := ss.sealer.seal(StateCookieName, data)
	if err != nil {
		return nil, err
	}
	ss.sealer.set(w, StateCookieName, value, int(stateTTL.Seconds()))
	return data, nil
}

// Validate checks state against the cookie carried by r.
func (ss *StateStore) Validate(r *http.Request, state string) (*StateData, error) {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return nil, fmt.Errorf("state cookie not found: %w", err)
	}
	var data StateData
	if err := ss.sealer.open(StateCookieName, cookie.Value, &data); err != nil {
		return nil, err
	}
	if time.Now().After(data.ExpiresAt) {
		return nil, fmt.Errorf("state expired")
	}
	if subtle.ConstantTimeCompare([]byte(data.State), []byte(state)) != 1 {
		return nil, fmt.Errorf("state mismatch")
	}
	return &data, nil
}

// Clear removes the state cookie.
func (ss *StateStore) Clear(w http.ResponseWriter) {
	ss.sealer.clear(w, StateCookieName)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
