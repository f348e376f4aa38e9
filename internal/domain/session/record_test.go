package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRecord(t *testing.T, token string) *Record {
	t.Helper()
	r, err := NewRecord("user-1", token, DeviceInfo{UserAgent: "test"}, "203.0.114.7", 2*time.Hour, testNow)
	require.NoError(t, err)
	return r
}

func TestNewRecord(t *testing.T) {
	r := newTestRecord(t, "tok-a")

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, testNow.Add(2*time.Hour), r.ExpiresAt)
	assert.Equal(t, testNow, r.LastActivity)
	assert.Nil(t, r.InvalidatedAt)
	assert.NotEqual(t, "tok-a", r.TokenHash)
	assert.Equal(t, HashToken("tok-a"), r.TokenHash)
}

func TestNewRecord_Rejects(t *testing.T) {
	_, err := NewRecord("", "tok", DeviceInfo{}, "", time.Hour, testNow)
	assert.Error(t, err)

	_, err = NewRecord("user-1", "", DeviceInfo{}, "", time.Hour, testNow)
	assert.Error(t, err)

	_, err = NewRecord("user-1", "tok", DeviceInfo{}, "", 0, testNow)
	assert.Error(t, err)
}

func TestNewRecord_DefaultsUnknownIP(t *testing.T) {
	r, err := NewRecord("user-1", "tok", DeviceInfo{}, "", time.Hour, testNow)
	require.NoError(t, err)
	assert.Equal(t, UnknownIP, r.IPAddress)
}

func TestRecord_InvalidateIsOneWay(t *testing.T) {
	r := newTestRecord(t, "tok")
	first := testNow.Add(time.Minute)

	r.Invalidate(first)
	r.Invalidate(first.Add(time.Hour))

	assert.Equal(t, StatusInvalidated, r.Status)
	require.NotNil(t, r.InvalidatedAt)
	assert.Equal(t, first, *r.InvalidatedAt)
	assert.False(t, r.IsValid(testNow))
}

func TestRecord_Expiry(t *testing.T) {
	r := newTestRecord(t, "tok")

	assert.True(t, r.IsValid(testNow.Add(time.Hour)))
	assert.False(t, r.IsValid(r.ExpiresAt))
	assert.True(t, r.IsExpired(r.ExpiresAt.Add(time.Second)))
}

func TestRecord_TouchDoesNotExtendExpiry(t *testing.T) {
	r := newTestRecord(t, "tok")
	expires := r.ExpiresAt

	r.Touch(testNow.Add(time.Hour))
	assert.Equal(t, testNow.Add(time.Hour), r.LastActivity)
	assert.Equal(t, expires, r.ExpiresAt)

	r.Touch(testNow)
	assert.Equal(t, testNow.Add(time.Hour), r.LastActivity, "activity never moves backwards")
}

func TestRecord_MatchesToken(t *testing.T) {
	r := newTestRecord(t, "tok-a")
	assert.True(t, r.MatchesToken("tok-a"))
	assert.False(t, r.MatchesToken("tok-b"))
}

func TestGenerateToken_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, tok, 64)
		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestChangeEvent_InvalidatesToken(t *testing.T) {
	r := newTestRecord(t, "tok-a")
	r.Invalidate(testNow)
	ev := NewChangeEvent(ChangeTypeUpdate, r, testNow)

	assert.Equal(t, "sessions", ev.Table)
	assert.True(t, ev.InvalidatesToken("tok-a"))
	assert.False(t, ev.InvalidatesToken("tok-b"))
	assert.False(t, ev.InvalidatesToken(""))

	active := NewChangeEvent(ChangeTypeInsert, newTestRecord(t, "tok-a"), testNow)
	assert.False(t, active.InvalidatesToken("tok-a"))
}
