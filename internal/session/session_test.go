package session

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jetkvm/jiggler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store *Store
	docs  *storage.MemoryStore
	clock *testClock
	creds *Credentials
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:  storage.NewMemoryStore(),
		clock: &testClock{now: time.Unix(1_700_000_000, 0)},
		creds: &Credentials{AuthEnabled: true, Username: "admin", Password: "secret"},
	}
	f.store = NewStore(Options{
		Docs:        f.docs,
		Credentials: func() Credentials { return *f.creds },
		Now:         f.clock.Now,
		Rand:        rand.New(rand.NewPCG(42, 7)),
	})
	return f
}

func TestCreateRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Create("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.store.Create("Admin", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.store.Create("", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Zero(t, f.store.ActiveCount())
	assert.False(t, f.docs.Exists(DocumentPath))
}

func TestCreateIssuesAlphanumericIDs(t *testing.T) {
	f := newFixture(t)

	id, err := f.store.Create("admin", "secret")
	require.NoError(t, err)
	assert.Len(t, id, IDLength)
	for _, r := range id {
		assert.Contains(t, idCharset, string(r))
	}

	other, err := f.store.Create("admin", "secret")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	assert.True(t, f.docs.Exists(DocumentPath))
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	id, err := f.store.Create("admin", "secret")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	assert.True(t, f.store.Validate(id))
	assert.Equal(t, f.clock.now.Add(Timeout), f.store.Sessions()[0].Expiry)

	// the refresh above moved expiry, so 20 more minutes is still fine
	f.clock.Advance(20 * time.Minute)
	assert.True(t, f.store.Validate(id))

	f.clock.Advance(Timeout)
	writes := f.docs.Writes
	assert.False(t, f.store.Validate(id))
	assert.False(t, f.store.Sessions()[0].Active)
	assert.Equal(t, writes+1, f.docs.Writes, "expiry is persisted immediately")

	writes = f.docs.Writes
	assert.False(t, f.store.Validate(id))
	assert.Equal(t, writes, f.docs.Writes)
}

func TestValidateUnknownID(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Create("admin", "secret")
	require.NoError(t, err)

	writes := f.docs.Writes
	assert.False(t, f.store.Validate("does-not-exist"))
	assert.False(t, f.store.Validate(""))
	assert.Equal(t, writes, f.docs.Writes)
}

func TestValidateThrottlesPersistence(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.Create("admin", "secret")
	require.NoError(t, err)
	writes := f.docs.Writes

	for i := 0; i < 4; i++ {
		f.clock.Advance(time.Minute)
		require.True(t, f.store.Validate(id))
	}
	assert.Equal(t, writes, f.docs.Writes)

	f.clock.Advance(2 * time.Minute)
	require.True(t, f.store.Validate(id))
	assert.Equal(t, writes+1, f.docs.Writes)
}

func TestCapacity(t *testing.T) {
	f := newFixture(t)

	ids := make([]string, 0, Capacity)
	for i := 0; i < Capacity; i++ {
		id, err := f.store.Create("admin", "secret")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := f.store.Create("admin", "secret")
	assert.ErrorIs(t, err, ErrNoCapacity)

	assert.True(t, f.store.Invalidate(ids[3]))
	_, err = f.store.Create("admin", "secret")
	require.NoError(t, err)

	_, err = f.store.Create("admin", "secret")
	assert.ErrorIs(t, err, ErrNoCapacity)

	f.clock.Advance(Timeout + time.Second)
	assert.Equal(t, Capacity, f.store.SweepExpired())
	_, err = f.store.Create("admin", "secret")
	assert.NoError(t, err)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.Create("admin", "secret")
	require.NoError(t, err)

	assert.True(t, f.store.Invalidate(id))
	assert.False(t, f.store.Invalidate(id))
	assert.False(t, f.store.Validate(id))
}

func TestSweepDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Create("admin", "secret")
	require.NoError(t, err)

	writes := f.docs.Writes
	f.clock.Advance(Timeout)
	assert.Equal(t, 1, f.store.SweepExpired())
	assert.Zero(t, f.store.ActiveCount())
	assert.Equal(t, writes, f.docs.Writes)
}

func TestAuthBypass(t *testing.T) {
	f := newFixture(t)
	f.creds.AuthEnabled = false

	assert.True(t, f.store.Validate(""))
	assert.True(t, f.store.Validate("garbage"))
	assert.Zero(t, f.store.ActiveCount())
}

func TestLoadRevivesSessionsWithGrace(t *testing.T) {
	f := newFixture(t)
	a, err := f.store.Create("admin", "secret")
	require.NoError(t, err)
	b, err := f.store.Create("admin", "secret")
	require.NoError(t, err)
	require.True(t, f.store.Invalidate(b))

	restarted := newFixture(t)
	restarted.docs = f.docs
	restarted.store.docs = f.docs
	restarted.clock.Advance(3 * time.Hour)

	require.NoError(t, restarted.store.Load())
	assert.Equal(t, 1, restarted.store.ActiveCount())
	sessions := restarted.store.Sessions()
	assert.Equal(t, a, sessions[0].ID)
	assert.Equal(t, restarted.clock.now.Add(RevivalGrace), sessions[0].Expiry)

	restarted.clock.Advance(2 * time.Hour)
	assert.True(t, restarted.store.Validate(a))
	assert.False(t, restarted.store.Validate(b))
}

func TestLoadCorruptDocument(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.docs.Write(DocumentPath, []byte(`{"sessions":[{"id":`)))

	assert.Error(t, f.store.Load())
	assert.Zero(t, f.store.ActiveCount())
}

func TestLoadIgnoresMalformedEntries(t *testing.T) {
	f := newFixture(t)
	doc := sessionsDocument{}
	valid := "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345"
	doc.Sessions = append(doc.Sessions,
		persistedSession{ID: "short", Active: true},
		persistedSession{ID: valid, Active: true},
		persistedSession{ID: valid, Active: true},
	)
	for i := 0; i < Capacity+5; i++ {
		id := []byte(valid)
		id[0] = idCharset[i]
		doc.Sessions = append(doc.Sessions, persistedSession{ID: string(id), Active: true})
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, f.docs.Write(DocumentPath, data))

	require.NoError(t, f.store.Load())
	assert.Equal(t, Capacity, f.store.ActiveCount())
}

func TestLoadMissingDocument(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.Load())
	assert.Zero(t, f.store.ActiveCount())
}

func TestPersistFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.docs.FailWrites = true

	id, err := f.store.Create("admin", "secret")
	require.NoError(t, err)
	assert.True(t, f.store.Validate(id))
}

func TestLoginLimiter(t *testing.T) {
	l := NewLoginLimiter()
	for i := 0; i < MaxLoginFailures-1; i++ {
		l.Fail("10.0.0.2")
	}
	assert.False(t, l.Blocked("10.0.0.2"))

	l.Fail("10.0.0.2")
	assert.True(t, l.Blocked("10.0.0.2"))
	assert.False(t, l.Blocked("10.0.0.3"))

	l.Reset("10.0.0.2")
	assert.False(t, l.Blocked("10.0.0.2"))
}
