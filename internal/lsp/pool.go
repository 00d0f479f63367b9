package lsp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jasonbot/be-your-own-rag/internal/observability"
)

// PoolConfig carries pool-wide timeouts.
type PoolConfig struct {
	StartupTimeout time.Duration
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
	Metrics        *observability.Metrics
}

// Pool keeps one language server session per workspace root and serializes
// queries against each session. Idle sessions are reaped in the background.
type Pool struct {
	cfg    PoolConfig
	langs  *ConfigRegistry
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*poolEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

type poolEntry struct {
	mu       sync.Mutex // one query at a time per session
	session  *Session
	lastUsed time.Time
}

// NewPool constructs a pool with the given language registry.
func NewPool(cfg PoolConfig, langs *ConfigRegistry, logger *zap.Logger) *Pool {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if langs == nil {
		langs = NewConfigRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		cfg:     cfg,
		langs:   langs,
		logger:  logger,
		entries: make(map[string]*poolEntry),
		stopCh:  make(chan struct{}),
	}
	go p.reapIdle()
	return p
}

// Lease grants exclusive use of a session until released. Release is safe to
// call more than once; the session is handed back exactly once.
type Lease struct {
	entry   *poolEntry
	release sync.Once
}

// Session returns the leased session.
func (l *Lease) Session() *Session {
	return l.entry.session
}

// Release hands the session back to the pool.
func (l *Lease) Release() {
	l.release.Do(func() {
		l.entry.lastUsed = time.Now()
		l.entry.mu.Unlock()
	})
}

// Acquire returns an exclusive lease on the session for a workspace root,
// starting a server on first use. Callers holding a lease block other
// queries against the same root until they release it.
func (p *Pool) Acquire(ctx context.Context, root string) (*Lease, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	for {
		p.mu.Lock()
		entry, ok := p.entries[absRoot]
		if !ok {
			entry = &poolEntry{}
			p.entries[absRoot] = entry
		}
		p.mu.Unlock()

		entry.mu.Lock()

		// The reaper or a failed start may have dropped this entry while we
		// waited for the lock. Leasing it would hand out a closed session or
		// race a fresh entry for the same root, so retry against the map.
		p.mu.Lock()
		live := p.entries[absRoot] == entry
		p.mu.Unlock()
		if !live {
			entry.mu.Unlock()
			continue
		}

		if entry.session == nil {
			lang, err := p.langs.DetectLanguage(absRoot)
			if err != nil {
				p.forget(absRoot, entry)
				entry.mu.Unlock()
				return nil, &StartError{Root: absRoot, Err: err}
			}

			session := NewSession(SessionConfig{
				Language:       lang,
				Root:           absRoot,
				StartupTimeout: p.cfg.StartupTimeout,
				RequestTimeout: p.cfg.RequestTimeout,
				Metrics:        p.cfg.Metrics,
			}, p.logger)

			if err := session.Start(ctx); err != nil {
				p.forget(absRoot, entry)
				entry.mu.Unlock()
				return nil, err
			}
			entry.session = session
		}

		entry.lastUsed = time.Now()
		return &Lease{entry: entry}, nil
	}
}

func (p *Pool) forget(root string, entry *poolEntry) {
	p.mu.Lock()
	if p.entries[root] == entry {
		delete(p.entries, root)
	}
	p.mu.Unlock()
}

// reapIdle shuts down sessions not used within the idle timeout.
func (p *Pool) reapIdle() {
	ticker := time.NewTicker(p.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}

		p.reapOnce()
	}
}

// reapOnce performs a single reap sweep. A reaped entry gets its session
// cleared before removal so that a waiter already blocked on entry.mu
// never sees the closed session.
func (p *Pool) reapOnce() {
	p.mu.Lock()
	for root, entry := range p.entries {
		if !entry.mu.TryLock() {
			continue // in use
		}
		if entry.session != nil && time.Since(entry.lastUsed) >= p.cfg.IdleTimeout {
			if err := entry.session.Close(); err != nil {
				p.logger.Warn("close idle session", zap.String("root", root), zap.Error(err))
			}
			entry.session = nil
			delete(p.entries, root)
		}
		entry.mu.Unlock()
	}
	p.mu.Unlock()
}

// Close stops the reaper and shuts down every session. Idempotent.
func (p *Pool) Close() error {
	var errs error
	p.stopOnce.Do(func() {
		close(p.stopCh)

		p.mu.Lock()
		entries := p.entries
		p.entries = make(map[string]*poolEntry)
		p.mu.Unlock()

		for root, entry := range entries {
			entry.mu.Lock()
			if entry.session != nil {
				if err := entry.session.Close(); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("close %s: %w", root, err))
				}
			}
			entry.mu.Unlock()
		}
	})
	return errs
}
