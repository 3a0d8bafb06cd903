package storage

import (
	"context"
	"fmt"
)

var mysqlMigrations = []struct {
	name string
	stmt string
}{
	{
		name: "create_members",
		stmt: `CREATE TABLE IF NOT EXISTS members (
			id            CHAR(36)     NOT NULL PRIMARY KEY,
			name          VARCHAR(255) NOT NULL,
			surname       VARCHAR(255) NULL,
			booking_count INT          NOT NULL DEFAULT 0,
			date_joined   DATETIME(6)  NOT NULL,
			CONSTRAINT chk_members_booking_count CHECK (booking_count >= 0)
		)`,
	},
	{
		name: "create_inventory",
		stmt: `CREATE TABLE IF NOT EXISTS inventory (
			id              CHAR(36)     NOT NULL PRIMARY KEY,
			title           VARCHAR(255) NOT NULL,
			description     TEXT         NOT NULL,
			remaining_count INT          NOT NULL DEFAULT 0,
			expiration_date DATETIME(6)  NOT NULL,
			CONSTRAINT chk_inventory_remaining_count CHECK (remaining_count >= 0)
		)`,
	},
	{
		name: "create_bookings",
		stmt: `CREATE TABLE IF NOT EXISTS bookings (
			id                CHAR(36)    NOT NULL PRIMARY KEY,
			member_id         CHAR(36)    NOT NULL,
			inventory_id      CHAR(36)    NOT NULL,
			booking_date_time DATETIME(6) NOT NULL,
			status            VARCHAR(16) NOT NULL,
			created_at        DATETIME(6) NOT NULL,
			updated_at        DATETIME(6) NOT NULL,
			INDEX idx_bookings_member (member_id),
			INDEX idx_bookings_inventory (inventory_id),
			INDEX idx_bookings_created (created_at)
		)`,
	},
}

// Migrate creates the schema. Every statement is idempotent.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, mig := range mysqlMigrations {
		if _, err := m.db.ExecContext(ctx, mig.stmt); err != nil {
			return fmt.Errorf("migration %s: %w", mig.name, err)
		}
	}
	return nil
}
