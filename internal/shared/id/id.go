// Package id provides centralized ID generation.
//
// Session, folder, and version records use prefixed ULIDs: lexicographically
// sortable, so creation order survives in logs and exports, and prefixed so a
// bare ID in a log line is self-describing.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a saved session.
type SessionID string

// FolderID identifies a session folder.
type FolderID string

// VersionID identifies one snapshot in a session's version history.
type VersionID string

// ID prefixes, for debugging and type identification.
const (
	SessionPrefix = "sess"
	FolderPrefix  = "fold"
	VersionPrefix = "ver"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for tests needing deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewFolderID generates a new folder ID.
func NewFolderID() FolderID {
	return FolderID(Default().GenerateWithPrefix(FolderPrefix))
}

// NewVersionID generates a new version ID.
func NewVersionID() VersionID {
	return VersionID(Default().GenerateWithPrefix(VersionPrefix))
}

// NewRequestID generates a trace/request ID.
func NewRequestID() string {
	return Default().GenerateWithPrefix(RequestPrefix)
}

func (id SessionID) String() string { return string(id) }
func (id FolderID) String() string  { return string(id) }
func (id VersionID) String() string { return string(id) }
