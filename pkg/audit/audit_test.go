package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NamespaceDecisionLedger, "ledger:abc", []byte("payload")))

	value, found, err := s.Get(ctx, NamespaceDecisionLedger, "ledger:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), value)
}

func TestSQLiteStore_GetMissingKey(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.Get(context.Background(), NamespaceSwarmAudit, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_PutOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NamespaceSwarmAudit, "handoff:1", []byte("v1")))
	require.NoError(t, s.Put(ctx, NamespaceSwarmAudit, "handoff:1", []byte("v2")))

	value, found, err := s.Get(ctx, NamespaceSwarmAudit, "handoff:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), value)
}

func TestSQLiteStore_NamespacesAreIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NamespaceDecisionLedger, "k", []byte("ledger")))
	require.NoError(t, s.Put(ctx, NamespaceSwarmAudit, "k", []byte("swarm")))

	v1, _, err := s.Get(ctx, NamespaceDecisionLedger, "k")
	require.NoError(t, err)
	v2, _, err := s.Get(ctx, NamespaceSwarmAudit, "k")
	require.NoError(t, err)

	assert.Equal(t, []byte("ledger"), v1)
	assert.Equal(t, []byte("swarm"), v2)
}

type fakeStore struct {
	put func(ctx context.Context, namespace, key string, value []byte) error
}

func (f *fakeStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	return f.put(ctx, namespace, key, value)
}

func (f *fakeStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}

func TestFireAndForget_DoesNotBlockOnFailure(t *testing.T) {
	done := make(chan struct{})
	store := &fakeStore{put: func(context.Context, string, string, []byte) error {
		close(done)
		return assertError{}
	}}

	start := time.Now()
	FireAndForget(store, NamespaceDecisionLedger, "k", []byte("v"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fire-and-forget write never ran")
	}
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
