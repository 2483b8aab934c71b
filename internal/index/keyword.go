package index

import (
	"strings"
	"sync"
	"unicode"

	"ragpool/internal/model"
)

// Tokenize lowercases text and splits it into alphanumeric terms. Single
// characters are dropped; they match everything and rank nothing.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// sessionIndex is the inverted keyword index for one session's active
// documents: term -> chunk id -> occurrence count.
type sessionIndex struct {
	postings map[string]map[uint]int
	chunkDoc map[uint]uint
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{
		postings: make(map[string]map[uint]int),
		chunkDoc: make(map[uint]uint),
	}
}

// Manager caches per-session keyword indexes. Each index is an independent
// in-memory cache built lazily from persisted chunks, so dropping one is
// always safe: the store remains the source of truth.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint]*sessionIndex
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[uint]*sessionIndex)}
}

// HasSession reports whether an index is loaded for the session.
func (m *Manager) HasSession(sessionID uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// EnsureSession creates an empty index for the session if none is loaded.
// The caller then feeds it with IndexChunks; keeping the two steps separate
// lets chunk loading happen outside the lock.
func (m *Manager) EnsureSession(sessionID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.sessions[sessionID] = newSessionIndex()
	}
}

// IndexChunks adds a document's chunks to the session's index. Used both for
// fresh uploads and for re-indexing an already-chunked document when it is
// activated into another session; the chunks are never re-derived here.
// A no-op when the session has no loaded index.
func (m *Manager) IndexChunks(sessionID, documentID uint, chunks []model.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	for i := range chunks {
		c := &chunks[i]
		idx.chunkDoc[c.ID] = documentID
		for _, term := range Tokenize(c.Text) {
			bucket, ok := idx.postings[term]
			if !ok {
				bucket = make(map[uint]int)
				idx.postings[term] = bucket
			}
			bucket[c.ID]++
		}
	}
}

// RemoveDocument drops a document's chunks from one session's index.
func (m *Manager) RemoveDocument(sessionID, documentID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	idx.removeDocument(documentID)
}

// RemoveDocumentEverywhere drops a document from every loaded index; used on
// document deletion, when no session may see it again.
func (m *Manager) RemoveDocumentEverywhere(documentID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range m.sessions {
		idx.removeDocument(documentID)
	}
}

func (idx *sessionIndex) removeDocument(documentID uint) {
	stale := make(map[uint]bool)
	for chunkID, docID := range idx.chunkDoc {
		if docID == documentID {
			stale[chunkID] = true
			delete(idx.chunkDoc, chunkID)
		}
	}
	if len(stale) == 0 {
		return
	}
	for term, bucket := range idx.postings {
		for chunkID := range bucket {
			if stale[chunkID] {
				delete(bucket, chunkID)
			}
		}
		if len(bucket) == 0 {
			delete(idx.postings, term)
		}
	}
}

// Unload drops the whole index for a session.
func (m *Manager) Unload(sessionID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Score returns, per chunk id, how many distinct query terms the chunk
// contains. Chunks matching no term are absent from the result.
func (m *Manager) Score(sessionID uint, queryTerms []string) map[uint]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	scores := make(map[uint]int)
	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true
		for chunkID := range idx.postings[term] {
			scores[chunkID]++
		}
	}
	return scores
}
