package repos

import (
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate is returned when a write hits a unique index.
var ErrDuplicate = errors.New("duplicate key")

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer, and every ":memory:" connection is its own
	// database, so the pool is pinned to one connection.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	// Seed demo members and products (idempotent; safe to run every start)
	if err := seedMembers(db); err != nil {
		return nil, err
	}
	if err := seedProducts(db); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;
PRAGMA busy_timeout = 5000;

-- Members
CREATE TABLE IF NOT EXISTS members(
  email TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  profile_image TEXT,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_members_email_nocase ON members(LOWER(email));

-- Products
CREATE TABLE IF NOT EXISTS products(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  product_name TEXT NOT NULL,
  product_code TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL CHECK (price >= 0),
  stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
  description TEXT NOT NULL DEFAULT '',
  manufacturer TEXT NOT NULL DEFAULT '',
  image_url TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_code     ON products(product_code);
CREATE INDEX IF NOT EXISTS idx_products_category        ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_name            ON products(LOWER(product_name));

-- Email verification keys (one live key per email)
CREATE TABLE IF NOT EXISTS email_auth_keys(
  email TEXT PRIMARY KEY,
  auth_key TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

-- Sessions (used by the sql session backend)
CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,               -- same value as the 'sid' cookie
  member_email TEXT NULL REFERENCES members(email) ON DELETE SET NULL ON UPDATE CASCADE,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  last_seen  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_member ON sessions(member_email);
`
	_, err := db.Exec(schema)
	return err
}

// seedMembers ensures the demo members exist (idempotent).
func seedMembers(db *sqlx.DB) error {
	type m struct {
		Email, Name, Phone, Address, Hash string
	}
	mk := func(email, name, phone, address, raw string) m {
		h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		return m{Email: email, Name: name, Phone: phone, Address: address, Hash: string(h)}
	}

	members := []m{
		mk("alice@goods.test", "Alice", "010-1111-2222", "Seoul", "Passw0rd!"),
		mk("bob@goods.test", "Bob", "010-3333-4444", "Busan", "Passw0rd!"),
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, x := range members {
		if _, err := tx.Exec(`
			INSERT INTO members(email,name,password_hash,phone,address)
			VALUES(?,?,?,?,?)
			ON CONFLICT(email) DO NOTHING
		`, x.Email, x.Name, x.Hash, x.Phone, x.Address); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// seedProducts inserts the demo catalog if the codes are not present yet.
func seedProducts(db *sqlx.DB) error {
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO products(product_name,product_code,category,price,stock_quantity,description,manufacturer)
		VALUES
		  ('Acrylic Stand - Spring','GD-ACR-001','acrylic',15000,20,'Double-sided acrylic stand','Goods Lab'),
		  ('Keyring Set','GD-KEY-001','keyring',8000,50,'Set of three metal keyrings','Goods Lab'),
		  ('Photo Card Binder','GD-BND-001','stationery',22000,5,'A5 binder with 20 sleeves','Paper Works')
		ON CONFLICT(product_code) DO NOTHING
	`); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
