package api

import (
	"time"

	"github.com/ssargent/datapak/pkg/codec"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Addr   string
	APIKey string // empty disables authentication
	// DiskUsage reports the bytes used by the store; optional.
	DiskUsage func() uint64
}

// IEntryReader is the read side of a packed store the API serves.
// *scan.Reader satisfies it.
type IEntryReader interface {
	Meta() (*codec.StoreMeta, error)
	Len() (int, error)
	Get(relPath string) (*codec.Record, error)
	At(n uint64) (*codec.Record, error)
	List(prefix string, limit int) ([]string, error)
}

// StatsResponse describes a store.
type StatsResponse struct {
	FormatVersion uint8     `json:"format_version"`
	KeyScheme     string    `json:"key_scheme"`
	Checksum      string    `json:"checksum_algorithm"`
	EntryCount    uint64    `json:"entry_count"`
	TotalBytes    uint64    `json:"total_bytes"`
	DiskBytes     uint64    `json:"disk_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastRunID     string    `json:"last_run_id"`
	Runs          uint64    `json:"runs"`
}

// EntriesResponse is a page of relative paths.
type EntriesResponse struct {
	Prefix  string   `json:"prefix,omitempty"`
	Count   int      `json:"count"`
	Entries []string `json:"entries"`
}
