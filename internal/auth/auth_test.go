package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// replay copies the cookies set on rec onto a new request.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionRoundTrip(t *testing.T) {
	sm, err := NewSessionManager(testKey, time.Hour, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Create(rec, &Session{Subject: "u1", Email: "ops@example.com", Name: "Ops"}))

	got, err := sm.Get(replay(rec))
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Subject)
	assert.Equal(t, "ops@example.com", got.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, time.Minute)
}

func TestSessionRejectsTamperedAndExpired(t *testing.T) {
	sm, err := NewSessionManager(testKey, time.Hour, false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	_, err = sm.Get(req)
	assert.Error(t, err)

	expired, err := NewSessionManager(testKey, -time.Minute, false)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, expired.Create(rec, &Session{Email: "ops@example.com"}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: rec.Result().Cookies()[0].Value})
	_, err = sm.Get(req)
	assert.Error(t, err)

	_, err = sm.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}

func TestStateCookieCannotBeUsedAsSession(t *testing.T) {
	ss, err := NewStateStore(testKey, false)
	require.NoError(t, err)
	sm, err := NewSessionManager(testKey, time.Hour, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	_, err = ss.Generate(rec)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: rec.Result().Cookies()[0].Value})
	_, err = sm.Get(req)
	assert.Error(t, err)
}

func TestStateValidate(t *testing.T) {
	ss, err := NewStateStore(testKey, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	data, err := ss.Generate(rec)
	require.NoError(t, err)
	assert.NotEmpty(t, data.Nonce)

	got, err := ss.Validate(replay(rec), data.State)
	require.NoError(t, err)
	assert.Equal(t, data.Nonce, got.Nonce)

	_, err = ss.Validate(replay(rec), "other")
	assert.Error(t, err)
}

func TestNewSealerKeyLength(t *testing.T) {
	_, err := NewSessionManager([]byte("short"), time.Hour, false)
	assert.Error(t, err)
	_, err = NewStateStore([]byte("short"), false)
	assert.Error(t, err)
}

func TestCheckEmailDomain(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		allowed []string
		wantErr bool
	}{
		{"no restriction", "a@b.com", nil, false},
		{"missing email", "", nil, true},
		{"allowed domain", "ops@Example.com", []string{"example.com"}, false},
		{"other domain", "ops@evil.com", []string{"example.com"}, true},
		{"no at sign", "ops", []string{"example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkEmailDomain(tt.email, tt.allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
