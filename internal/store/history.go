package store

import (
	"github.com/nvandessel/cogmap/internal/models"
)

// DefaultHistoryLimit is the number of snapshots kept when no limit is
// configured: the current document plus 20 undo steps.
const DefaultHistoryLimit = 21

// snapshot is one committed document together with its canonical hash.
type snapshot struct {
	doc  *models.CognitiveMap
	hash string
}

// History is a linear undo/redo stack of whole-document snapshots.
// It is not safe for concurrent use; MapStore serializes access.
type History struct {
	snapshots []snapshot
	cursor    int
	limit     int // 0 means unbounded
}

// NewHistory returns a history holding seed as its only snapshot.
func NewHistory(limit int, seed *models.CognitiveMap, hash string) *History {
	h := &History{limit: limit}
	h.Reset(seed, hash)
	return h
}

// Push appends doc after the cursor. The redo tail is discarded and, when a
// limit is set and exceeded, the oldest snapshot is dropped.
func (h *History) Push(doc *models.CognitiveMap, hash string) {
	h.snapshots = append(h.snapshots[:h.cursor+1], snapshot{doc: models.Clone(doc), hash: hash})
	h.cursor = len(h.snapshots) - 1

	if h.limit > 0 && len(h.snapshots) > h.limit {
		drop := len(h.snapshots) - h.limit
		h.snapshots = append([]snapshot(nil), h.snapshots[drop:]...)
		h.cursor -= drop
	}
}

// Undo moves the cursor back one snapshot.
func (h *History) Undo() (*models.CognitiveMap, error) {
	if !h.CanUndo() {
		return nil, &models.InvalidStateError{Op: "undo", Reason: "nothing to undo"}
	}
	h.cursor--
	return h.Current(), nil
}

// Redo moves the cursor forward one snapshot.
func (h *History) Redo() (*models.CognitiveMap, error) {
	if !h.CanRedo() {
		return nil, &models.InvalidStateError{Op: "redo", Reason: "nothing to redo"}
	}
	h.cursor++
	return h.Current(), nil
}

// Reset discards every snapshot and seeds doc at index 0.
func (h *History) Reset(doc *models.CognitiveMap, hash string) {
	h.snapshots = []snapshot{{doc: models.Clone(doc), hash: hash}}
	h.cursor = 0
}

// Current returns a deep copy of the snapshot at the cursor.
func (h *History) Current() *models.CognitiveMap {
	return models.Clone(h.snapshots[h.cursor].doc)
}

// CurrentHash returns the canonical hash of the snapshot at the cursor.
func (h *History) CurrentHash() string {
	return h.snapshots[h.cursor].hash
}

// CanUndo reports whether a previous snapshot exists.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether a later snapshot exists.
func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

// Len returns the number of snapshots held.
func (h *History) Len() int { return len(h.snapshots) }

// Info summarizes the cursor. Dirty is left for the caller to fill in.
func (h *History) Info() models.HistoryInfo {
	return models.HistoryInfo{
		CurrentIndex:  h.cursor,
		HistoryLength: len(h.snapshots),
		CanUndo:       h.CanUndo(),
		CanRedo:       h.CanRedo(),
		Limit:         h.limit,
		CurrentHash:   h.CurrentHash(),
	}
}
