package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"prichal/internal/domain"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
	locks  *keyedMutex
	sb     sq.StatementBuilderType
}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

func NewDB(path string, busyTimeoutMS int, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	// Создаем директорию для БД, если её нет
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// BEGIN IMMEDIATE берет блокировку записи сразу, а не при первом UPDATE
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, busyTimeoutMS)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return newDB(sqlDB, path, logger), nil
}

func newDB(sqlDB *sql.DB, path string, logger *zerolog.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		path:   path,
		logger: logger,
		locks:  newKeyedMutex(),
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT,
            type TEXT NOT NULL,
            definition TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'ACTIVE',
            sort_order INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            booking_number TEXT NOT NULL UNIQUE,
            customer_id TEXT,
            customer_name TEXT NOT NULL,
            customer_phone TEXT NOT NULL,
            customer_segment TEXT,
            resource_id TEXT NOT NULL,
            resource_type TEXT NOT NULL,
            date TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            duration_minutes INTEGER NOT NULL,
            slot_label TEXT,
            quantity INTEGER NOT NULL,
            passengers INTEGER NOT NULL DEFAULT 0,
            number_of_guests INTEGER NOT NULL DEFAULT 0,
            event_type TEXT,
            location_type TEXT,
            add_ons TEXT NOT NULL DEFAULT '[]',
            coupon_code TEXT,
            pricing TEXT NOT NULL,
            final_amount INTEGER NOT NULL,
            status TEXT NOT NULL,
            payment_status TEXT NOT NULL,
            payment_mode TEXT NOT NULL,
            transaction_ref TEXT,
            expires_at DATETIME,
            cancellation TEXT,
            date_modifications TEXT NOT NULL DEFAULT '[]',
            date_modification_count INTEGER NOT NULL DEFAULT 0,
            inquiry_id TEXT,
            created_by TEXT NOT NULL,
            is_deleted BOOLEAN NOT NULL DEFAULT 0,
            deleted_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS inquiries (
            id TEXT PRIMARY KEY,
            inquiry_number TEXT NOT NULL UNIQUE,
            customer_id TEXT,
            customer_name TEXT NOT NULL,
            customer_phone TEXT NOT NULL,
            customer_email TEXT,
            resource_id TEXT NOT NULL,
            event_type TEXT NOT NULL,
            date TEXT NOT NULL,
            slot_label TEXT NOT NULL,
            location_type TEXT,
            number_of_guests INTEGER NOT NULL,
            add_ons TEXT NOT NULL DEFAULT '[]',
            notes TEXT,
            status TEXT NOT NULL,
            quoted_amount INTEGER,
            quoted_details TEXT,
            quoted_at DATETIME,
            responded_at DATETIME,
            rejection_reason TEXT,
            converted_booking_id TEXT,
            converted_at DATETIME,
            is_deleted BOOLEAN NOT NULL DEFAULT 0,
            deleted_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS settings_versions (
            version INTEGER PRIMARY KEY,
            snapshot TEXT NOT NULL,
            updated_by TEXT,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sequences (
            name TEXT PRIMARY KEY,
            value INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            request_key TEXT PRIMARY KEY,
            operation TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS refund_audit (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id TEXT NOT NULL,
            action TEXT NOT NULL,
            actor TEXT NOT NULL,
            percent INTEGER NOT NULL DEFAULT 0,
            amount INTEGER NOT NULL DEFAULT 0,
            overridden BOOLEAN NOT NULL DEFAULT 0,
            note TEXT,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS notification_outbox (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_date ON bookings(resource_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_expires ON bookings(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_end ON bookings(status, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_inquiries_status ON inquiries(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_refund_audit_booking ON refund_audit(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON notification_outbox(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// conn returns the transaction carried by ctx, or the pool.
func (db *DB) conn(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}

// InTx runs fn in a transaction. Nested calls join the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

// WithLock serializes fn against every other commit for the resource on the
// given day and runs it inside one transaction.
func (db *DB) WithLock(ctx context.Context, resourceID, date string, fn func(ctx context.Context) error) error {
	key := resourceID + "|" + date
	if err := db.locks.Lock(ctx, key); err != nil {
		return err
	}
	defer db.locks.Unlock(key)

	return db.InTx(ctx, fn)
}

// storageErr wraps driver failures as transient.
func storageErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrTransient, err)
}

// keyedMutex hands out one lock per key and forgets keys nobody waits on.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch      chan struct{}
	waiters int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (m *keyedMutex) Lock(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.waiters++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, l)
		return ctx.Err()
	}
}

func (m *keyedMutex) Unlock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	m.release(key, l)
}

func (m *keyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.waiters--
	if l.waiters == 0 {
		delete(m.locks, key)
	}
}
