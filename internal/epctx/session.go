package epctx

import (
	"sync"

	"github.com/google/uuid"
)

// SharedContext coordinates the external cache filename across the writer
// invocations of one sharing session, so N independently generated context
// models reference a single physical binary. It is injectable rather than
// a process global: independent sessions get independent instances, and
// parallel tests stay isolated.
//
// Claim, read, and reset each execute under one lock; a read-then-write
// race between two writers would let both believe they named the shared
// file.
type SharedContext struct {
	mu          sync.Mutex
	binFileName string
	sessionID   string
}

// NewSharedContext returns an empty coordinator.
func NewSharedContext() *SharedContext {
	return &SharedContext{}
}

// ClaimBinFileName atomically records candidate as the session's shared
// filename if none is set yet, and returns the filename all participants
// must use. claimed is true for the writer that named the session.
func (s *SharedContext) ClaimBinFileName(candidate string) (name string, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binFileName == "" {
		s.binFileName = candidate
		s.sessionID = uuid.NewString()
		return candidate, true
	}
	return s.binFileName, false
}

// BinFileName returns the current shared filename, or "" outside a
// session.
func (s *SharedContext) BinFileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binFileName
}

// SessionID returns the diagnostic identifier of the active session, or
// "" outside one.
func (s *SharedContext) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Reset ends the session. The final participant calls it after performing
// the physical write.
func (s *SharedContext) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binFileName = ""
	s.sessionID = ""
}
