package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for ownership registry operations.
//
// Read paths used during message routing (OwnerOf, IsOwner) never return an
// error: a storage failure is logged and degrades to "owner unknown", which
// the router treats as "sender is a customer". Silently suppressing replies
// on an unrecognized connection would be worse than occasionally replying to
// an owner whose mapping has not been recorded yet.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertConnection inserts or updates the ownership record for
	// conn.ConnectionID. The write is idempotent and keyed on connection_id;
	// created_at is preserved across updates, updated_at is refreshed.
	UpsertConnection(ctx context.Context, conn *BusinessConnection) error

	// OwnerOf returns the owning account id for an active connection.
	// The second result is false when no active record exists or the
	// lookup failed.
	OwnerOf(ctx context.Context, connectionID string) (int64, bool)

	// IsOwner reports whether userID owns the active connection. Unknown
	// ownership returns false, never an error.
	IsOwner(ctx context.Context, connectionID string, userID int64) bool

	// DeactivateConnection soft-deletes the record: it sets is_active = 0
	// and refreshes updated_at. The row is retained for audit history.
	DeactivateConnection(ctx context.Context, connectionID string) error

	// ListActiveConnections returns all active records, most recently
	// updated first.
	ListActiveConnections(ctx context.Context) ([]BusinessConnection, error)

	// ConnectionStats returns registry counters and storage size.
	ConnectionStats(ctx context.Context) (*ConnectionStats, error)

	// RunMaintenance performs database maintenance (ANALYZE, VACUUM).
	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx over SQLite.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertConnection inserts or updates an ownership record. The conflict
// target is the primary key, so concurrent upserts for the same connection
// serialize in the storage layer and the last write wins.
func (s *sqlxStore) UpsertConnection(ctx context.Context, conn *BusinessConnection) error {
	if conn == nil {
		return fmt.Errorf("cannot save nil connection")
	}
	if conn.ConnectionID == "" {
		return fmt.Errorf("connection must have a non-empty connection_id")
	}
	if conn.OwnerUserID == 0 {
		return fmt.Errorf("connection must have a non-zero owner_user_id")
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
        INSERT INTO business_connections
            (connection_id, owner_user_id, owner_name, owner_username, is_active, created_at, updated_at)
        VALUES
            (:connection_id, :owner_user_id, :owner_name, :owner_username, :is_active, :created_at, :updated_at)
        ON CONFLICT(connection_id) DO UPDATE SET
            owner_user_id  = excluded.owner_user_id,
            owner_name     = excluded.owner_name,
            owner_username = excluded.owner_username,
            is_active      = excluded.is_active,
            updated_at     = excluded.updated_at;
    `

	if _, err := s.db.NamedExecContext(ctx, query, conn); err != nil {
		s.logger.ErrorContext(ctx, "Error saving business connection",
			"connection_id", conn.ConnectionID, "owner_id", conn.OwnerUserID, "error", err)
		return fmt.Errorf("failed to save connection %q: %w", conn.ConnectionID, err)
	}

	s.logger.InfoContext(ctx, "Business connection saved",
		"connection_id", conn.ConnectionID, "owner_id", conn.OwnerUserID, "is_active", conn.IsActive)
	return nil
}

// OwnerOf returns the owner account id for an active connection.
func (s *sqlxStore) OwnerOf(ctx context.Context, connectionID string) (int64, bool) {
	if connectionID == "" {
		return 0, false
	}

	var ownerID int64
	query := `SELECT owner_user_id FROM business_connections WHERE connection_id = ? AND is_active = 1`
	if err := s.db.GetContext(ctx, &ownerID, query, connectionID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.ErrorContext(ctx, "Error looking up connection owner, treating owner as unknown",
				"connection_id", connectionID, "error", err)
		}
		return 0, false
	}

	return ownerID, true
}

// IsOwner reports whether userID owns the active connection.
func (s *sqlxStore) IsOwner(ctx context.Context, connectionID string, userID int64) bool {
	ownerID, ok := s.OwnerOf(ctx, connectionID)
	if !ok {
		s.logger.DebugContext(ctx, "Owner unknown for connection, treating sender as customer",
			"connection_id", connectionID, "user_id", userID)
		return false
	}
	return ownerID == userID
}

// DeactivateConnection soft-deletes an ownership record.
func (s *sqlxStore) DeactivateConnection(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("connection_id cannot be empty")
	}

	query := `UPDATE business_connections SET is_active = 0, updated_at = ? WHERE connection_id = ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), connectionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deactivating business connection",
			"connection_id", connectionID, "error", err)
		return fmt.Errorf("failed to deactivate connection %q: %w", connectionID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.WarnContext(ctx, "Deactivation for unknown connection", "connection_id", connectionID)
	}

	s.logger.InfoContext(ctx, "Business connection deactivated", "connection_id", connectionID)
	return nil
}

// ListActiveConnections returns all active records, newest update first.
func (s *sqlxStore) ListActiveConnections(ctx context.Context) ([]BusinessConnection, error) {
	var conns []BusinessConnection
	query := `
        SELECT connection_id, owner_user_id, owner_name, owner_username, is_active, created_at, updated_at
        FROM business_connections
        WHERE is_active = 1
        ORDER BY updated_at DESC;
    `
	if err := s.db.SelectContext(ctx, &conns, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing active connections", "error", err)
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}
	return conns, nil
}

// ConnectionStats returns registry counters and storage size.
func (s *sqlxStore) ConnectionStats(ctx context.Context) (*ConnectionStats, error) {
	stats := &ConnectionStats{}

	query := `
        SELECT
            COUNT(*) AS total_connections,
            COALESCE(SUM(is_active), 0) AS active_connections
        FROM business_connections;
    `
	if err := s.db.GetContext(ctx, stats, query); err != nil {
		s.logger.ErrorContext(ctx, "Error reading connection counters", "error", err)
		return nil, fmt.Errorf("failed to read connection stats: %w", err)
	}
	stats.InactiveConnections = stats.TotalConnections - stats.ActiveConnections

	// Direct column reference keeps the TIMESTAMP decltype, which MAX() would lose.
	lastQuery := `SELECT updated_at FROM business_connections ORDER BY updated_at DESC LIMIT 1`
	var last time.Time
	if err := s.db.GetContext(ctx, &last, lastQuery); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.WarnContext(ctx, "Error reading last update time", "error", err)
		}
	} else {
		stats.LastUpdate = sql.NullTime{Time: last, Valid: true}
	}

	var pageCount, pageSize int64
	if err := s.db.GetContext(ctx, &pageCount, `PRAGMA page_count`); err == nil {
		if err := s.db.GetContext(ctx, &pageSize, `PRAGMA page_size`); err == nil {
			stats.StorageSizeBytes = pageCount * pageSize
		}
	}

	return stats, nil
}

// RunMaintenance performs database maintenance tasks.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ANALYZE;`); err != nil {
		return fmt.Errorf("failed to run ANALYZE: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM;`); err != nil {
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
