package storage

import "time"

// Account is a custodial TON account held by the bot for one Telegram user.
// An account row always carries a non-empty address; accounts are never
// deleted.
type Account struct {
	UserID         int64
	AddressRaw     string // 0:... format
	AddressDisplay string // UQ.../EQ... format
	Seed           string // wallet seed phrase, custodial
	PublicKey      string // hex-encoded ed25519 public key
	CreatedAt      time.Time
}

// User is a directory entry recorded whenever a user interacts with the bot.
// Used to resolve @username mentions in tips and to render display names.
type User struct {
	UserID      int64
	Username    string
	DisplayName string
	UpdatedAt   time.Time
}

// ProcessedEvent tracks which ledger events have already been handled by the
// deposit watcher to avoid duplicate notifications.
type ProcessedEvent struct {
	UserID  int64
	EventID string
}
