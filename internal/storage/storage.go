package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id INTEGER PRIMARY KEY,
			address_raw TEXT NOT NULL,
			address_display TEXT NOT NULL,
			seed TEXT NOT NULL,
			public_key TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_address_raw ON accounts(address_raw)`,

		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT,
			display_name TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,

		`CREATE TABLE IF NOT EXISTS processed_events (
			user_id INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			PRIMARY KEY (user_id, event_id)
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Accounts ---

// AddAccount persists a newly provisioned account
func (s *Storage) AddAccount(a *Account) error {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO accounts (user_id, address_raw, address_display, seed, public_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AddressRaw, a.AddressDisplay, a.Seed, a.PublicKey, a.CreatedAt.Unix(),
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetAccount returns the account for a user
func (s *Storage) GetAccount(userID int64) (*Account, error) {
	var a Account
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT user_id, address_raw, address_display, seed, public_key, created_at
		 FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&a.UserID, &a.AddressRaw, &a.AddressDisplay, &a.Seed, &a.PublicKey, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// GetAccountByAddress returns the account holding a raw address
func (s *Storage) GetAccountByAddress(addressRaw string) (*Account, error) {
	var a Account
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT user_id, address_raw, address_display, seed, public_key, created_at
		 FROM accounts WHERE address_raw = ?`,
		addressRaw,
	).Scan(&a.UserID, &a.AddressRaw, &a.AddressDisplay, &a.Seed, &a.PublicKey, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// UpdateAccount rewrites a stored account
func (s *Storage) UpdateAccount(a *Account) error {
	result, err := s.db.Exec(
		`UPDATE accounts SET address_raw = ?, address_display = ?, seed = ?, public_key = ?
		 WHERE user_id = ?`,
		a.AddressRaw, a.AddressDisplay, a.Seed, a.PublicKey, a.UserID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAllAccounts returns every account in the database
func (s *Storage) GetAllAccounts() ([]Account, error) {
	rows, err := s.db.Query(
		`SELECT user_id, address_raw, address_display, seed, public_key, created_at
		 FROM accounts`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var createdAt int64

		err := rows.Scan(&a.UserID, &a.AddressRaw, &a.AddressDisplay, &a.Seed, &a.PublicKey, &createdAt)
		if err != nil {
			return nil, err
		}

		a.CreatedAt = time.Unix(createdAt, 0)
		accounts = append(accounts, a)
	}

	return accounts, nil
}

// --- Users ---

// UpsertUser records or refreshes a directory entry for a user
func (s *Storage) UpsertUser(userID int64, username, displayName string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, username, display_name, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		userID, strings.ToLower(username), displayName, now,
	)
	return err
}

// UserIDByUsername resolves a @username (without the @) to a user ID
func (s *Storage) UserIDByUsername(username string) (int64, error) {
	var userID int64
	err := s.db.QueryRow(
		`SELECT user_id FROM users WHERE username = ? AND username != ''`,
		strings.ToLower(username),
	).Scan(&userID)

	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return userID, err
}

// DisplayName returns the stored display name for a user
func (s *Storage) DisplayName(userID int64) (string, error) {
	var name string
	err := s.db.QueryRow(
		`SELECT display_name FROM users WHERE user_id = ?`,
		userID,
	).Scan(&name)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return name, err
}

// --- Processed Events ---

// MarkEventProcessed marks an event as processed for an account, returns true if it was new
func (s *Storage) MarkEventProcessed(userID int64, eventID string) (bool, error) {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO processed_events (user_id, event_id) VALUES (?, ?)",
		userID, eventID,
	)
	if err != nil {
		return false, err
	}

	// Check if it was actually inserted
	var count int
	err = s.db.QueryRow(
		"SELECT changes()",
	).Scan(&count)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
