// Package id provides identifier generation.
//
// Trace IDs are 128 random bits rendered as 32 lowercase hex characters.
// Batch IDs are ULIDs: 26 character, lexicographically sortable identifiers
// that group background tasks started by one request. A batch ID never
// travels in the trace header.
//
// Identifiers are opaque; callers must not rely on any embedded structure.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// HexLength is the length of a hex trace ID.
const HexLength = 32

// Generator produces trace IDs.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// NewTraceID returns a fresh 32 character hex identifier. It panics if the
// entropy source fails.
func (g *Generator) NewTraceID() string {
	g.entropyMu.Lock()
	u := uuid.Must(uuid.NewRandomFromReader(g.entropy))
	g.entropyMu.Unlock()

	return hex.EncodeToString(u[:])
}

// NewTraceID generates a trace ID with the default generator.
func NewTraceID() string {
	return Default().NewTraceID()
}

// NewBatchID returns a ULID stamped with the current time.
func NewBatchID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// IsHex reports whether s has the shape of a generated trace ID.
func IsHex(s string) bool {
	if len(s) != HexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// IsULID reports whether s parses as a ULID.
func IsULID(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}
