package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"tripdesk/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the relational store for catalog, pricing and reservation aggregates.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// immediate transactions take the write lock at BEGIN so concurrent writers queue on busy_timeout
		dsn = path + "?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.createTables(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS currencies (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT UNIQUE NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS products (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            kind TEXT NOT NULL,
            name TEXT NOT NULL,
            location TEXT NOT NULL DEFAULT '',
            owner_id INTEGER NOT NULL DEFAULT 0,
            status BOOLEAN NOT NULL DEFAULT 0,
            admin_approval BOOLEAN NOT NULL DEFAULT 0,
            average_rating REAL NOT NULL DEFAULT 0,
            comment_count INTEGER NOT NULL DEFAULT 0,
            highlight BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            deleted_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS packages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            product_id INTEGER NOT NULL REFERENCES products(id),
            name TEXT NOT NULL DEFAULT '',
            constant_price BOOLEAN NOT NULL DEFAULT 0,
            deleted_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS package_prices (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            package_id INTEGER NOT NULL REFERENCES packages(id),
            main_price TEXT NOT NULL,
            child_price TEXT,
            baby_price TEXT,
            single_price TEXT,
            currency_id INTEGER NOT NULL REFERENCES currencies(id),
            discount TEXT,
            start_date TEXT,
            end_date TEXT,
            total_tax_amount TEXT NOT NULL DEFAULT '0',
            deleted_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS product_images (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            product_id INTEGER NOT NULL REFERENCES products(id),
            url TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS commissions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sales_partner_id INTEGER NOT NULL,
            service_type TEXT NOT NULL,
            service_id INTEGER,
            commission_type TEXT NOT NULL,
            commission_value TEXT NOT NULL,
            commission_currency TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL DEFAULT '',
            surname TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            fcm_token TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS discount_codes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT UNIQUE NOT NULL,
            active BOOLEAN NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS discount_usages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            discount_code_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            payment_id TEXT NOT NULL,
            status BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS notification_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            kind TEXT NOT NULL,
            payment_id TEXT NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_products_kind ON products(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_packages_product_id ON packages(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_package_prices_package_id ON package_prices(package_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commissions_partner ON commissions(sales_partner_id, service_type)`,
		`CREATE INDEX IF NOT EXISTS idx_discount_usages_payment_id ON discount_usages(payment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_status ON notification_queue(status, next_retry_at)`,
	}

	for _, kind := range models.AllKinds() {
		queries = append(queries, reservationTables(kind.MustSpec())...)
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// reservationTables returns the DDL for one vertical. progress_id is unique per vertical.
func reservationTables(spec models.KindSpec) []string {
	r, inv, usr := spec.ReservationTable, spec.InvoiceTable, spec.TravelerTable
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            %s INTEGER NOT NULL,
            package_id INTEGER NOT NULL,
            payment_id TEXT NOT NULL,
            progress_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            price TEXT NOT NULL,
            currency_code TEXT NOT NULL,
            sales_partner_id INTEGER,
            created_by INTEGER,
            dealer_id INTEGER,
            start_date TEXT,
            end_date TEXT,
            period TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            deleted_at DATETIME
        )`, r, spec.ProductColumn),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_progress_id ON %s(progress_id)`, r, r),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_payment_id ON %s(payment_id)`, r, r),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER NOT NULL UNIQUE REFERENCES %s(id),
            title TEXT NOT NULL DEFAULT '',
            tax_office TEXT NOT NULL DEFAULT '',
            tax_number TEXT NOT NULL DEFAULT '',
            official TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT ''
        )`, inv, r),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER NOT NULL REFERENCES %s(id),
            name TEXT NOT NULL,
            surname TEXT NOT NULL,
            birthday TEXT,
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL DEFAULT 'adult',
            age INTEGER
        )`, usr, r),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_reservation_id ON %s(reservation_id)`, usr, usr),
	}
}
