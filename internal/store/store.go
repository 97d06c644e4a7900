// Package store provides record persistence implementations: a SQL
// store for embedded and server databases, and an HTTP store for
// remote search indices.
package store

import (
	"fmt"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// New creates a record store based on configuration.
func New(cfg domain.StoreConfig) (domain.RecordStore, error) {
	switch cfg.Backend {
	case "", "sql":
		return NewSQLStore(cfg)
	case "index":
		return NewIndexStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
