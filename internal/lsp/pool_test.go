package lsp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeaseReleaseExactlyOnce(t *testing.T) {
	t.Parallel()

	entry := &poolEntry{}
	entry.mu.Lock()

	lease := &Lease{entry: entry}
	lease.Release()
	lease.Release()

	// The mutex must be free after the first release and not double-unlocked.
	require.True(t, entry.mu.TryLock())
	entry.mu.Unlock()
}

func TestAcquireUnsupportedRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.csv"), []byte("a,b"), 0o644))

	p := NewPool(PoolConfig{IdleTimeout: time.Minute}, nil, nil)
	defer p.Close()

	_, err := p.Acquire(context.Background(), root)
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestReapOnceClearsSession(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{IdleTimeout: time.Minute}, nil, nil)
	defer p.Close()

	entry := &poolEntry{
		session:  NewSession(SessionConfig{Language: LanguageConfig{Language: "go"}, Root: "/tmp/idle"}, nil),
		lastUsed: time.Now().Add(-time.Hour),
	}
	p.mu.Lock()
	p.entries["/tmp/idle"] = entry
	p.mu.Unlock()

	p.reapOnce()

	// A waiter that grabbed the entry before the sweep must not find the
	// closed session still attached.
	require.Nil(t, entry.session)
	p.mu.Lock()
	_, ok := p.entries["/tmp/idle"]
	p.mu.Unlock()
	require.False(t, ok)
}

func TestAcquireRetriesForgottenEntry(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.csv"), []byte("a,b"), 0o644))
	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)

	p := NewPool(PoolConfig{IdleTimeout: time.Minute}, nil, nil)
	defer p.Close()

	// Plant an entry holding an already-closed session and keep it locked
	// so the acquiring goroutine blocks on entry.mu, as a waiter does while
	// another query runs.
	stale := &poolEntry{session: NewSession(SessionConfig{Language: LanguageConfig{Language: "go"}, Root: absRoot}, nil)}
	require.NoError(t, stale.session.Close())
	stale.mu.Lock()
	p.mu.Lock()
	p.entries[absRoot] = stale
	p.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		lease, err := p.Acquire(context.Background(), root)
		if lease != nil {
			lease.Release()
		}
		errCh <- err
	}()

	// Let the goroutine block, then drop the entry the way the reaper does.
	time.Sleep(50 * time.Millisecond)
	p.mu.Lock()
	delete(p.entries, absRoot)
	p.mu.Unlock()
	stale.session = nil
	stale.mu.Unlock()

	// The waiter must retry on a fresh entry instead of leasing the stale
	// one. The csv-only root cannot start a server, so the retry surfaces
	// the detection failure rather than a closed-session error.
	select {
	case err := <-errCh:
		var startErr *StartError
		require.ErrorAs(t, err, &startErr)
		require.ErrorIs(t, err, ErrUnsupportedLanguage)
	case <-time.After(5 * time.Second):
		t.Fatal("acquire did not return after its entry was dropped")
	}
}

func TestPoolCloseIdempotent(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{IdleTimeout: time.Minute}, nil, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
