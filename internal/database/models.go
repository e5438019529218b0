package database

import (
	"database/sql"
	"time"
)

// BusinessConnection is the ownership record for a Telegram business
// connection. It maps an opaque connection id to the premium account that
// granted the connection. Records are soft-deleted: when the owner revokes
// the connection the row stays behind with is_active = 0 for audit history,
// and no lookup treats it as a valid mapping.
type BusinessConnection struct {
	ConnectionID  string    `db:"connection_id"`
	OwnerUserID   int64     `db:"owner_user_id"`
	OwnerName     string    `db:"owner_name"`
	OwnerUsername string    `db:"owner_username"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ConnectionStats summarizes the state of the ownership registry.
type ConnectionStats struct {
	ActiveConnections   int          `db:"active_connections"`
	TotalConnections    int          `db:"total_connections"`
	InactiveConnections int          `db:"-"`
	LastUpdate          sql.NullTime `db:"last_update"`
	StorageSizeBytes    int64        `db:"-"`
}
