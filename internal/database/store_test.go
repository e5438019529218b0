package database_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/textilepro/businessbot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() failed: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func activeConn(connectionID string, ownerID int64) *database.BusinessConnection {
	return &database.BusinessConnection{
		ConnectionID:  connectionID,
		OwnerUserID:   ownerID,
		OwnerName:     "Elena",
		OwnerUsername: "elena_tp",
		IsActive:      true,
	}
}

func TestUpsertAndLookup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("UpsertConnection() failed: %v", err)
	}

	owner, ok := store.OwnerOf(ctx, "conn_1")
	if !ok || owner != 555 {
		t.Fatalf("OwnerOf(conn_1) = (%d, %v), want (555, true)", owner, ok)
	}

	if !store.IsOwner(ctx, "conn_1", 555) {
		t.Error("IsOwner(conn_1, 555) = false, want true")
	}
	if store.IsOwner(ctx, "conn_1", 777) {
		t.Error("IsOwner(conn_1, 777) = true, want false")
	}
	if store.IsOwner(ctx, "missing", 555) {
		t.Error("IsOwner(missing, 555) = true, want false")
	}
	if store.IsOwner(ctx, "", 555) {
		t.Error("IsOwner with empty connection id = true, want false")
	}
}

func TestUpsertValidation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		conn *database.BusinessConnection
	}{
		{"nil connection", nil},
		{"empty connection id", activeConn("", 555)},
		{"zero owner id", activeConn("conn_1", 0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.UpsertConnection(ctx, tc.conn); err == nil {
				t.Error("UpsertConnection() = nil, want error")
			}
		})
	}
}

func TestUpsertReplacesOwner(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := store.UpsertConnection(ctx, activeConn("conn_1", 556)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	owner, ok := store.OwnerOf(ctx, "conn_1")
	if !ok || owner != 556 {
		t.Fatalf("OwnerOf(conn_1) = (%d, %v), want (556, true)", owner, ok)
	}

	conns, err := store.ListActiveConnections(ctx)
	if err != nil {
		t.Fatalf("ListActiveConnections() failed: %v", err)
	}
	if len(conns) != 1 {
		t.Fatalf("got %d rows after re-upsert of the same connection, want 1", len(conns))
	}
}

func TestDeactivateConnection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("UpsertConnection() failed: %v", err)
	}
	if err := store.DeactivateConnection(ctx, "conn_1"); err != nil {
		t.Fatalf("DeactivateConnection() failed: %v", err)
	}

	if _, ok := store.OwnerOf(ctx, "conn_1"); ok {
		t.Error("OwnerOf() found an owner for a deactivated connection")
	}
	if store.IsOwner(ctx, "conn_1", 555) {
		t.Error("IsOwner() = true for a deactivated connection")
	}

	conns, err := store.ListActiveConnections(ctx)
	if err != nil {
		t.Fatalf("ListActiveConnections() failed: %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("deactivated connection still listed as active: %+v", conns)
	}

	// The row is retained for audit history.
	stats, err := store.ConnectionStats(ctx)
	if err != nil {
		t.Fatalf("ConnectionStats() failed: %v", err)
	}
	if stats.TotalConnections != 1 || stats.ActiveConnections != 0 || stats.InactiveConnections != 1 {
		t.Fatalf("stats after deactivation = %+v, want total=1 active=0 inactive=1", stats)
	}
}

func TestDeactivateUnknownConnection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// Revocation for a connection that was never recorded is logged, not an
	// error: the effect (no active mapping) already holds.
	if err := store.DeactivateConnection(context.Background(), "never_seen"); err != nil {
		t.Fatalf("DeactivateConnection(never_seen) failed: %v", err)
	}
}

func TestReactivation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("UpsertConnection() failed: %v", err)
	}
	if err := store.DeactivateConnection(ctx, "conn_1"); err != nil {
		t.Fatalf("DeactivateConnection() failed: %v", err)
	}
	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	owner, ok := store.OwnerOf(ctx, "conn_1")
	if !ok || owner != 555 {
		t.Fatalf("OwnerOf(conn_1) after re-enable = (%d, %v), want (555, true)", owner, ok)
	}
}

func TestListActiveConnectionsOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, conn := range []*database.BusinessConnection{
		activeConn("conn_a", 100),
		activeConn("conn_b", 200),
		activeConn("conn_c", 300),
	} {
		if err := store.UpsertConnection(ctx, conn); err != nil {
			t.Fatalf("UpsertConnection(%s) failed: %v", conn.ConnectionID, err)
		}
	}

	// Touch conn_a so it becomes the most recently updated.
	if err := store.UpsertConnection(ctx, activeConn("conn_a", 100)); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	conns, err := store.ListActiveConnections(ctx)
	if err != nil {
		t.Fatalf("ListActiveConnections() failed: %v", err)
	}
	if len(conns) != 3 {
		t.Fatalf("got %d connections, want 3", len(conns))
	}
	if conns[0].ConnectionID != "conn_a" {
		t.Errorf("most recently updated connection is %q, want conn_a", conns[0].ConnectionID)
	}
}

func TestConnectionStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.ConnectionStats(ctx)
	if err != nil {
		t.Fatalf("ConnectionStats() on empty registry failed: %v", err)
	}
	if empty.TotalConnections != 0 || empty.LastUpdate.Valid {
		t.Fatalf("empty registry stats = %+v, want zero counters and no last update", empty)
	}

	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("UpsertConnection() failed: %v", err)
	}
	if err := store.UpsertConnection(ctx, activeConn("conn_2", 556)); err != nil {
		t.Fatalf("UpsertConnection() failed: %v", err)
	}
	if err := store.DeactivateConnection(ctx, "conn_2"); err != nil {
		t.Fatalf("DeactivateConnection() failed: %v", err)
	}

	stats, err := store.ConnectionStats(ctx)
	if err != nil {
		t.Fatalf("ConnectionStats() failed: %v", err)
	}
	if stats.TotalConnections != 2 || stats.ActiveConnections != 1 || stats.InactiveConnections != 1 {
		t.Errorf("stats = %+v, want total=2 active=1 inactive=1", stats)
	}
	if !stats.LastUpdate.Valid {
		t.Error("LastUpdate not set after writes")
	}
	if stats.StorageSizeBytes <= 0 {
		t.Errorf("StorageSizeBytes = %d, want > 0", stats.StorageSizeBytes)
	}
}

func TestRunMaintenance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConnection(ctx, activeConn("conn_1", 555)); err != nil {
		t.Fatalf("UpsertConnection() failed: %v", err)
	}
	if err := store.RunMaintenance(ctx); err != nil {
		t.Fatalf("RunMaintenance() failed: %v", err)
	}

	if !store.IsOwner(ctx, "conn_1", 555) {
		t.Error("ownership lost after maintenance")
	}
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"plain path", "storage.db", "storage.db"},
		{"file scheme", "file:storage.db", "storage.db"},
		{"query params stripped", "file:storage.db?_busy_timeout=5000", "storage.db"},
		{"escaped path", "file:my%20db.db", "my db.db"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := database.ExtractDBNameFromPath(tc.path); got != tc.want {
				t.Errorf("ExtractDBNameFromPath(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}
