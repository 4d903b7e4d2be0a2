// Package stores provides the persistence layer for kbforge.
// It includes SQLite-based storage with WAL mode and connection pooling,
// holding the provisioned resource handles and the history of provision,
// sync, and cleanup operations.
package stores
