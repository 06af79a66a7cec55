// Package slot holds the single "current" document shared by every request.
package slot

import (
	"bytes"
	"sync"
	"time"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

// Document is a snapshot of the stored upload. Content returned by Get is a
// private copy; changing it does not affect the store.
type Document struct {
	Name       string
	Content    []byte
	Revision   uint64
	UploadedAt time.Time
}

// Size returns the content length in bytes
func (d Document) Size() int {
	return len(d.Content)
}

// Store keeps at most one document. It is safe for concurrent use: Put replaces
// name and content together, and Get always returns a consistent snapshot.
type Store struct {
	mu       sync.RWMutex
	current  *Document
	revision uint64
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Put unconditionally replaces the stored document. The content is copied, so
// callers may reuse their buffer and the returned document.
func (s *Store) Put(name string, content []byte) Document {
	buf := bytes.Clone(content)
	if buf == nil {
		buf = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	s.current = &Document{
		Name:       name,
		Content:    buf,
		Revision:   s.revision,
		UploadedAt: s.now(),
	}

	doc := *s.current
	doc.Content = bytes.Clone(buf)
	return doc
}

// Get returns the most recently stored document, or a NotFound error when
// nothing has been uploaded yet.
func (s *Store) Get() (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Document{}, pdferrors.New(pdferrors.ErrorTypeNotFound, "no document has been uploaded yet")
	}
	doc := *s.current
	doc.Content = bytes.Clone(s.current.Content)
	return doc, nil
}

// Revision returns the revision of the current document, 0 when empty
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Empty reports whether no document has been stored yet
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current == nil
}
