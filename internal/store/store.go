// Package store holds the active cognitive map and its undo/redo history.
// Every accepted mutation replaces the whole document and commits a snapshot.
package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nvandessel/cogmap/internal/models"
)

// CommitListener is notified with the new cursor state after every change
// to the current snapshot. Listeners run outside the store lock.
type CommitListener func(info models.HistoryInfo)

// MapStore is the single mutation gateway for the active document.
// Thread-safe: readers share a read lock, writers take the write lock
// across validate-and-commit.
type MapStore struct {
	mu        sync.RWMutex
	history   *History
	savedHash string
	ceiling   int
	logger    *slog.Logger
	listeners []CommitListener
}

// Option configures a MapStore.
type Option func(*storeOptions)

type storeOptions struct {
	historyLimit int
	ceiling      int
	logger       *slog.Logger
}

// WithHistoryLimit caps the number of snapshots kept. 0 means unbounded.
func WithHistoryLimit(n int) Option {
	return func(o *storeOptions) { o.historyLimit = n }
}

// WithMaxIterationsCeiling sets the upper bound enforced on scenario params.
func WithMaxIterationsCeiling(n int) Option {
	return func(o *storeOptions) { o.ceiling = n }
}

// WithLogger sets the logger used for commit tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *storeOptions) { o.logger = l }
}

// New creates a store seeded with an empty document, which is also the
// saved baseline.
func New(opts ...Option) *MapStore {
	o := storeOptions{
		historyLimit: DefaultHistoryLimit,
		ceiling:      DefaultMaxIterationsCeiling,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	empty := models.NewCognitiveMap()
	hash, err := models.Hash(empty)
	if err != nil {
		// The empty document always encodes.
		panic(fmt.Sprintf("hashing empty document: %v", err))
	}
	return &MapStore{
		history:   NewHistory(o.historyLimit, empty, hash),
		savedHash: hash,
		ceiling:   o.ceiling,
		logger:    o.logger,
	}
}

// OnCommit registers a listener for cursor changes.
func (s *MapStore) OnCommit(fn CommitListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// MaxIterationsCeiling returns the configured scenario iteration ceiling.
func (s *MapStore) MaxIterationsCeiling() int {
	return s.ceiling
}

// Get returns a deep copy of the current snapshot.
func (s *MapStore) Get() *models.CognitiveMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Current()
}

// Snapshot returns a deep copy of the current snapshot and its canonical hash,
// read atomically. Pass the hash to MarkSaved after persisting the copy.
func (s *MapStore) Snapshot() (*models.CognitiveMap, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Current(), s.history.CurrentHash()
}

// Hash returns the canonical hash of the current snapshot.
func (s *MapStore) Hash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.CurrentHash()
}

// Replace validates candidate and commits it as the new current snapshot.
// A candidate equal in content to the current snapshot is accepted without
// growing the history. On error nothing changes.
func (s *MapStore) Replace(candidate *models.CognitiveMap) (*models.CognitiveMap, error) {
	if candidate == nil {
		return nil, &models.ValidationError{Field: "document", Issue: "missing", Detail: "document is required"}
	}
	s.mu.Lock()
	doc, info, changed, err := s.commitLocked(models.Clone(candidate))
	listeners := s.listeners
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if changed {
		notify(listeners, info)
	}
	return doc, nil
}

// Update runs fn on a copy of the current snapshot under the write lock and
// commits the result through the same path as Replace. An error from fn
// aborts the update and is returned unchanged.
func (s *MapStore) Update(fn func(doc *models.CognitiveMap) error) (*models.CognitiveMap, error) {
	s.mu.Lock()
	working := s.history.Current()
	if err := fn(working); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	doc, info, changed, err := s.commitLocked(working)
	listeners := s.listeners
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if changed {
		notify(listeners, info)
	}
	return doc, nil
}

// commitLocked validates doc and pushes it. Caller must hold s.mu for writing.
// doc must already be owned by the caller.
func (s *MapStore) commitLocked(doc *models.CognitiveMap) (*models.CognitiveMap, models.HistoryInfo, bool, error) {
	doc.Normalize()
	if err := ValidateMap(doc, s.ceiling); err != nil {
		s.logger.Debug("rejected document", "error", err)
		return nil, models.HistoryInfo{}, false, err
	}
	hash, err := models.Hash(doc)
	if err != nil {
		return nil, models.HistoryInfo{}, false, fmt.Errorf("hashing document: %w", err)
	}
	if hash == s.history.CurrentHash() {
		return s.history.Current(), s.infoLocked(), false, nil
	}

	s.history.Push(doc, hash)
	info := s.infoLocked()
	s.logger.Debug("committed snapshot",
		"index", info.CurrentIndex,
		"length", info.HistoryLength,
		"nodes", len(doc.Nodes),
		"edges", len(doc.Edges))
	return s.history.Current(), info, true, nil
}

// Undo moves back one snapshot and returns it.
func (s *MapStore) Undo() (*models.CognitiveMap, error) {
	return s.move((*History).Undo)
}

// Redo moves forward one snapshot and returns it.
func (s *MapStore) Redo() (*models.CognitiveMap, error) {
	return s.move((*History).Redo)
}

func (s *MapStore) move(step func(*History) (*models.CognitiveMap, error)) (*models.CognitiveMap, error) {
	s.mu.Lock()
	doc, err := step(s.history)
	info := s.infoLocked()
	listeners := s.listeners
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	notify(listeners, info)
	return doc, nil
}

// Reset validates doc, replaces the whole history with it and records it as
// the saved baseline. Used when a project is opened or created.
func (s *MapStore) Reset(doc *models.CognitiveMap) error {
	return s.Exclusive(func(tx *Txn) error { return tx.Reset(doc) })
}

// Txn is exclusive access to the store, valid only inside the function
// passed to Exclusive. Its methods take no locks.
type Txn struct {
	s       *MapStore
	changed bool
}

// Exclusive runs fn while holding the store's write lock, so no commit, undo
// or redo can interleave with it. fn must not call MapStore methods, and
// anything it starts that does will wait until fn returns. Commit listeners
// are notified once afterwards if fn changed the cursor or the baseline.
func (s *MapStore) Exclusive(fn func(tx *Txn) error) error {
	s.mu.Lock()
	tx := &Txn{s: s}
	err := fn(tx)
	var (
		info      models.HistoryInfo
		listeners []CommitListener
	)
	if tx.changed {
		info = s.infoLocked()
		listeners = s.listeners
	}
	s.mu.Unlock()

	if tx.changed {
		notify(listeners, info)
	}
	return err
}

// Snapshot returns a copy of the current snapshot and its hash.
func (tx *Txn) Snapshot() (*models.CognitiveMap, string) {
	return tx.s.history.Current(), tx.s.history.CurrentHash()
}

// Dirty reports whether the current snapshot differs from the saved baseline.
func (tx *Txn) Dirty() bool {
	return tx.s.history.CurrentHash() != tx.s.savedHash
}

// MarkSaved records hash as the content last written to disk.
func (tx *Txn) MarkSaved(hash string) {
	tx.s.savedHash = hash
	tx.changed = true
}

// Reset validates doc and makes it the only snapshot and the saved baseline.
// On error nothing changes.
func (tx *Txn) Reset(doc *models.CognitiveMap) error {
	if doc == nil {
		return &models.ValidationError{Field: "document", Issue: "missing", Detail: "document is required"}
	}
	working := models.Clone(doc)
	working.Normalize()
	if err := ValidateMap(working, tx.s.ceiling); err != nil {
		return err
	}
	hash, err := models.Hash(working)
	if err != nil {
		return fmt.Errorf("hashing document: %w", err)
	}
	tx.s.history.Reset(working, hash)
	tx.s.savedHash = hash
	tx.changed = true
	return nil
}

// MarkSaved records hash as the content last written to disk.
func (s *MapStore) MarkSaved(hash string) {
	s.mu.Lock()
	s.savedHash = hash
	info := s.infoLocked()
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, info)
}

// Dirty reports whether the current snapshot differs from the saved baseline.
func (s *MapStore) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.CurrentHash() != s.savedHash
}

// Info returns the history cursor state.
func (s *MapStore) Info() models.HistoryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoLocked()
}

func (s *MapStore) infoLocked() models.HistoryInfo {
	info := s.history.Info()
	info.Dirty = info.CurrentHash != s.savedHash
	return info
}

func notify(listeners []CommitListener, info models.HistoryInfo) {
	for _, fn := range listeners {
		fn(info)
	}
}
