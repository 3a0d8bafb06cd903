package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

const mysqlDuplicateEntry = 1062

type sqlTxKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenMySQL opens a pool for dsn. Timestamps are parsed into time.Time and
// RowsAffected reports matched rows, which the conditional updates rely on.
func OpenMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// conn returns the unit of work bound to ctx, or the pool.
func (m *MySQLAdapter) conn(ctx context.Context) (querier, bool) {
	if tx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx); ok {
		return tx, true
	}
	return m.db, false
}

// Member repository

func (m *MySQLAdapter) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	q, inTx := m.conn(ctx)
	query := `SELECT id, name, surname, booking_count, date_joined FROM members WHERE id = ?`
	if inTx {
		query += ` FOR UPDATE`
	}

	var member domain.Member
	var surname sql.NullString
	err := q.QueryRowContext(ctx, query, id).
		Scan(&member.ID, &member.Name, &surname, &member.BookingCount, &member.DateJoined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}

	member.Surname = surname.String
	return &member, nil
}

func (m *MySQLAdapter) ListMembers(ctx context.Context) ([]domain.Member, error) {
	q, _ := m.conn(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, surname, booking_count, date_joined
		FROM members ORDER BY date_joined, id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]domain.Member, 0)
	for rows.Next() {
		var member domain.Member
		var surname sql.NullString
		if err := rows.Scan(&member.ID, &member.Name, &surname, &member.BookingCount, &member.DateJoined); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.Surname = surname.String
		members = append(members, member)
	}
	return members, rows.Err()
}

func (m *MySQLAdapter) InsertMember(ctx context.Context, member domain.Member) error {
	return m.BulkInsertMembers(ctx, []domain.Member{member})
}

func (m *MySQLAdapter) BulkInsertMembers(ctx context.Context, members []domain.Member) error {
	return m.WithinTx(ctx, func(ctx context.Context) error {
		q, _ := m.conn(ctx)
		for _, member := range members {
			_, err := q.ExecContext(ctx, `
				INSERT INTO members (id, name, surname, booking_count, date_joined)
				VALUES (?, ?, ?, ?, ?)`,
				member.ID, member.Name, nullString(member.Surname), member.BookingCount, member.DateJoined,
			)
			if err != nil {
				return fmt.Errorf("insert member %s: %w", member.ID, mapInsertErr(err))
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) SetMemberBookingCount(ctx context.Context, id string, expected, value int) error {
	q, _ := m.conn(ctx)
	result, err := q.ExecContext(ctx, `
		UPDATE members SET booking_count = ?
		WHERE id = ? AND booking_count = ?`,
		value, id, expected,
	)
	if err != nil {
		return fmt.Errorf("update member booking count: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("member %s booking count: %w", id, port.ErrOptimisticLock)
	}
	return nil
}

// Inventory repository

func (m *MySQLAdapter) GetInventory(ctx context.Context, id string) (*domain.Inventory, error) {
	q, inTx := m.conn(ctx)
	query := `SELECT id, title, description, remaining_count, expiration_date FROM inventory WHERE id = ?`
	if inTx {
		query += ` FOR UPDATE`
	}

	var item domain.Inventory
	err := q.QueryRowContext(ctx, query, id).
		Scan(&item.ID, &item.Title, &item.Description, &item.RemainingCount, &item.ExpirationDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.Inventory, error) {
	q, _ := m.conn(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, description, remaining_count, expiration_date
		FROM inventory ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Inventory, 0)
	for rows.Next() {
		var item domain.Inventory
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.RemainingCount, &item.ExpirationDate); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) InsertInventory(ctx context.Context, item domain.Inventory) error {
	return m.BulkInsertInventory(ctx, []domain.Inventory{item})
}

func (m *MySQLAdapter) BulkInsertInventory(ctx context.Context, items []domain.Inventory) error {
	return m.WithinTx(ctx, func(ctx context.Context) error {
		q, _ := m.conn(ctx)
		for _, item := range items {
			_, err := q.ExecContext(ctx, `
				INSERT INTO inventory (id, title, description, remaining_count, expiration_date)
				VALUES (?, ?, ?, ?, ?)`,
				item.ID, item.Title, item.Description, item.RemainingCount, item.ExpirationDate,
			)
			if err != nil {
				return fmt.Errorf("insert inventory %s: %w", item.ID, mapInsertErr(err))
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) SetInventoryRemainingCount(ctx context.Context, id string, expected, value int) error {
	q, _ := m.conn(ctx)
	result, err := q.ExecContext(ctx, `
		UPDATE inventory SET remaining_count = ?
		WHERE id = ? AND remaining_count = ?`,
		value, id, expected,
	)
	if err != nil {
		return fmt.Errorf("update inventory remaining count: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("inventory %s remaining count: %w", id, port.ErrOptimisticLock)
	}
	return nil
}

// Booking repository

func (m *MySQLAdapter) InsertBooking(ctx context.Context, booking domain.Booking) error {
	q, _ := m.conn(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO bookings (id, member_id, inventory_id, booking_date_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.MemberID, booking.InventoryID, booking.ScheduledAt, booking.Status,
		booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", mapInsertErr(err))
	}
	return nil
}

func (m *MySQLAdapter) UpdateBooking(ctx context.Context, booking domain.Booking, expected domain.BookingStatus) error {
	q, _ := m.conn(ctx)
	result, err := q.ExecContext(ctx, `
		UPDATE bookings SET status = ?, booking_date_time = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		booking.Status, booking.ScheduledAt, booking.UpdatedAt, booking.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("booking %s status: %w", booking.ID, port.ErrOptimisticLock)
	}
	return nil
}

func (m *MySQLAdapter) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	q, inTx := m.conn(ctx)
	query := `
		SELECT id, member_id, inventory_id, booking_date_time, status, created_at, updated_at
		FROM bookings WHERE id = ?`
	if inTx {
		query += ` FOR UPDATE`
	}

	var b domain.Booking
	err := q.QueryRowContext(ctx, query, id).
		Scan(&b.ID, &b.MemberID, &b.InventoryID, &b.ScheduledAt, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query booking: %w", err)
	}
	return &b, nil
}

func (m *MySQLAdapter) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	q, _ := m.conn(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, member_id, inventory_id, booking_date_time, status, created_at, updated_at
		FROM bookings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.MemberID, &b.InventoryID, &b.ScheduledAt, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapInsertErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", port.ErrDuplicateKey, myErr.Message)
	}
	return err
}
