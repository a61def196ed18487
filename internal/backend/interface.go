package backend

import (
	"context"

	"github.com/Ayushsunny/Budgease/internal/persistence"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the adapter instance and optional cleanup function
type BackendResult struct {
	Adapter persistence.Adapter
	Cleanup CleanupFunc
}

// Lister returns the adapter as a persistence.Lister when it can enumerate
// identities.
func (r *BackendResult) Lister() (persistence.Lister, bool) {
	l, ok := r.Adapter.(persistence.Lister)
	return l, ok
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string

	// MongoDB specific
	MongoURI        string
	MongoDB         string
	MongoCollection string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MongoBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
