package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only history record.
type Entry struct {
	ID            string          `json:"id"`
	Actor         string          `json:"actor"`
	Role          string          `json:"role"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	Description   string          `json:"description"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payload_digest,omitempty"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Reader lists the history of one resource, oldest first.
type Reader interface {
	ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error)
}

// Store reads and writes audit entries.
type Store interface {
	Logger
	Reader
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalize fills the generated fields of an entry.
func normalize(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return entry
}
