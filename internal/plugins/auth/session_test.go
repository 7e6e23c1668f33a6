package auth

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/rootapp/internal/config"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

var alice = Principal{AccountID: "acc-1", CredentialID: "cred-1", Username: "alice", Email: "a@x.com"}

func TestStatefulStore_CreateAndLookup(t *testing.T) {
	mr, rdb := setupRedis(t)
	store := NewStatefulStore(rdb, time.Hour)
	ctx := context.Background()

	token, h, err := store.Create(ctx, alice, RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.True(t, h.IsValid)
	assert.Equal(t, "acc-1", h.AccountID)

	// The raw token never appears in Redis.
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, token)
		if mr.Type(key) == "string" {
			v, _ := mr.Get(key)
			assert.NotContains(t, v, token)
		}
	}
	assert.True(t, mr.Exists(sessionKeyPrefix+h.ID))
	assert.True(t, mr.Exists(sessionTokenKeyPrefix+hashToken(token)))
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+h.ID))

	got, err := store.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, "cred-1", got.CredentialID)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
}

func TestStatefulStore_LookupUnknownToken(t *testing.T) {
	_, rdb := setupRedis(t)
	store := NewStatefulStore(rdb, time.Hour)

	_, err := store.Lookup(context.Background(), "nope")
	assert.True(t, isSessionInvalid(err))
}

func TestStatefulStore_RevokeIsIdempotent(t *testing.T) {
	mr, rdb := setupRedis(t)
	store := NewStatefulStore(rdb, time.Hour)
	ctx := context.Background()

	token, h, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, h.ID))
	require.NoError(t, store.Revoke(ctx, h.ID))
	require.NoError(t, store.Revoke(ctx, "never-existed"))

	_, err = store.Lookup(ctx, token)
	assert.True(t, isSessionInvalid(err))

	// The record is kept, marked invalid, until its TTL runs out.
	assert.True(t, mr.Exists(sessionKeyPrefix+h.ID))
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+h.ID))

	active, err := store.ListActive(ctx, "acc-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStatefulStore_Expiry(t *testing.T) {
	mr, rdb := setupRedis(t)
	store := NewStatefulStore(rdb, time.Minute)
	ctx := context.Background()

	token, _, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Lookup(ctx, token)
	assert.True(t, isSessionInvalid(err))
}

func TestStatefulStore_ListActiveAndRevokeAll(t *testing.T) {
	mr, rdb := setupRedis(t)
	store := NewStatefulStore(rdb, time.Hour)
	ctx := context.Background()

	_, first, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	_, second, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	_, err = store.ListActive(ctx, "acc-1")
	require.NoError(t, err)

	bob := Principal{AccountID: "acc-2", CredentialID: "cred-2"}
	bobToken, _, err := store.Create(ctx, bob, RequestMeta{})
	require.NoError(t, err)

	active, err := store.ListActive(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	ids := []string{active[0].ID, active[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	// An expired record is pruned from the membership set.
	mr.Del(sessionKeyPrefix + first.ID)
	active, err = store.ListActive(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	members, err := mr.Members(accountSessionKeyPrefix + "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, members)

	require.NoError(t, store.RevokeAll(ctx, "acc-1"))
	active, err = store.ListActive(ctx, "acc-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	// Other accounts are untouched.
	_, err = store.Lookup(ctx, bobToken)
	assert.NoError(t, err)
}

func TestStatefulStore_TouchKeepsTTLAndRevocation(t *testing.T) {
	mr, rdb := setupRedis(t)
	s := NewStatefulStore(rdb, time.Hour).(*statefulStore)
	ctx := context.Background()

	later := time.Now().Add(10 * time.Minute)
	token, h, err := s.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	mr.FastForward(10 * time.Minute)
	s.now = func() time.Time { return later }
	require.NoError(t, s.Touch(ctx, h))

	got, err := s.Lookup(ctx, token)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastActiveAt, time.Second)
	assert.Equal(t, 50*time.Minute, mr.TTL(sessionKeyPrefix+h.ID))

	require.NoError(t, s.Revoke(ctx, h.ID))
	require.NoError(t, s.Touch(ctx, h))
	_, err = s.Lookup(ctx, token)
	assert.True(t, isSessionInvalid(err))
}

func TestStatelessStore_CreateAndLookup(t *testing.T) {
	mr, rdb := setupRedis(t)
	store, err := NewStatelessStore(rdb, testSecret, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	token, h, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	assert.Empty(t, mr.Keys(), "login writes nothing to Redis")

	got, err := store.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, "cred-1", got.CredentialID)

	claims := &sessionClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, h.ID, claims.ID)
}

func TestStatelessStore_Revoke(t *testing.T) {
	mr, rdb := setupRedis(t)
	store, err := NewStatelessStore(rdb, testSecret, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	token, h, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, h.ID))
	require.NoError(t, store.Revoke(ctx, h.ID))
	assert.Equal(t, time.Hour, mr.TTL(revokedKeyPrefix+h.ID))

	_, err = store.Lookup(ctx, token)
	assert.True(t, isSessionInvalid(err))
}

func TestStatelessStore_RejectsTamperedAndExpired(t *testing.T) {
	_, rdb := setupRedis(t)
	store, err := NewStatelessStore(rdb, testSecret, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	token, _, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	other, err := NewStatelessStore(rdb, "another-secret-key-with-32-characters", time.Hour)
	require.NoError(t, err)
	_, err = other.Lookup(ctx, token)
	assert.True(t, isSessionInvalid(err))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "acc-1", "jti": "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = store.Lookup(ctx, unsigned)
	assert.True(t, isSessionInvalid(err))

	s := store.(*statelessStore)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Lookup(ctx, token)
	assert.True(t, isSessionInvalid(err))
}

func TestStatelessStore_ListingUnsupported(t *testing.T) {
	_, rdb := setupRedis(t)
	store, err := NewStatelessStore(rdb, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = store.ListActive(context.Background(), "acc-1")
	assert.ErrorIs(t, err, ErrListingUnsupported)
}

func TestStatelessStore_RevokeAllUsesCutoff(t *testing.T) {
	mr, rdb := setupRedis(t)
	store, err := NewStatelessStore(rdb, testSecret, time.Hour)
	require.NoError(t, err)
	s := store.(*statelessStore)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	first, _, err := s.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	clock = clock.Add(time.Millisecond)
	second, _, err := s.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	bob := Principal{AccountID: "acc-2", CredentialID: "cred-2"}
	bobToken, _, err := s.Create(ctx, bob, RequestMeta{})
	require.NoError(t, err)

	clock = clock.Add(time.Millisecond)
	require.NoError(t, s.RevokeAll(ctx, "acc-1"))
	assert.Equal(t, time.Hour, mr.TTL(validAfterKeyPrefix+"acc-1"))

	// Both tokens share an iat second with the cutoff and are still rejected.
	_, err = s.Lookup(ctx, first)
	assert.True(t, isSessionInvalid(err))
	_, err = s.Lookup(ctx, second)
	assert.True(t, isSessionInvalid(err))
	_, err = s.Lookup(ctx, bobToken)
	assert.NoError(t, err)

	clock = clock.Add(time.Millisecond)
	fresh, _, err := s.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	_, err = s.Lookup(ctx, fresh)
	assert.NoError(t, err, "sessions issued after the cutoff authenticate")
}

func TestStatelessStore_RevokeOthersKeepsOne(t *testing.T) {
	_, rdb := setupRedis(t)
	store, err := NewStatelessStore(rdb, testSecret, time.Hour)
	require.NoError(t, err)
	s := store.(*statelessStore)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	current, h, err := s.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	other, _, err := s.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	clock = clock.Add(time.Second)
	require.NoError(t, s.RevokeOthers(ctx, "acc-1", h.ID))

	_, err = s.Lookup(ctx, current)
	assert.NoError(t, err)
	_, err = s.Lookup(ctx, other)
	assert.True(t, isSessionInvalid(err))

	// A later revoke-all drops the kept session too.
	clock = clock.Add(time.Second)
	require.NoError(t, s.RevokeAll(ctx, "acc-1"))
	_, err = s.Lookup(ctx, current)
	assert.True(t, isSessionInvalid(err))
}

func TestRevokedByCutoff(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	claims := &sessionClaims{IssuedAtNano: issued.UnixNano()}
	claims.ID = "sess-1"

	at := strconv.FormatInt(issued.UnixNano(), 10)
	assert.False(t, revokedByCutoff(claims, nil))
	assert.False(t, revokedByCutoff(claims, map[string]string{"at": "garbage"}))
	assert.True(t, revokedByCutoff(claims, map[string]string{"at": at}))
	assert.False(t, revokedByCutoff(claims, map[string]string{"at": at, "keep": "sess-1"}))
	assert.False(t, revokedByCutoff(claims, map[string]string{"at": strconv.FormatInt(issued.UnixNano()-1, 10)}))

	// Tokens without iat_ns fall back to the second-precision iat.
	legacy := &sessionClaims{}
	legacy.ID = "sess-2"
	legacy.IssuedAt = jwt.NewNumericDate(issued)
	assert.True(t, revokedByCutoff(legacy, map[string]string{"at": at}))
}

func TestStatefulStore_RevokeOthers(t *testing.T) {
	_, rdb := setupRedis(t)
	store := NewStatefulStore(rdb, time.Hour)
	ctx := context.Background()

	current, h, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)
	other, _, err := store.Create(ctx, alice, RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, store.RevokeOthers(ctx, "acc-1", h.ID))

	_, err = store.Lookup(ctx, current)
	assert.NoError(t, err)
	_, err = store.Lookup(ctx, other)
	assert.True(t, isSessionInvalid(err))
}

func TestNewSessionStore(t *testing.T) {
	_, rdb := setupRedis(t)

	s, err := NewSessionStore(config.SessionModeStateful, rdb, "", time.Hour)
	require.NoError(t, err)
	assert.IsType(t, &statefulStore{}, s)

	s, err = NewSessionStore(config.SessionModeStateless, rdb, testSecret, time.Hour)
	require.NoError(t, err)
	assert.IsType(t, &statelessStore{}, s)

	_, err = NewSessionStore(config.SessionModeStateless, rdb, "short", time.Hour)
	assert.Error(t, err)

	_, err = NewSessionStore("cookie", rdb, testSecret, time.Hour)
	assert.Error(t, err)
}
