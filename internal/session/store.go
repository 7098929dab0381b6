package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"chat-client/internal/models"
)

// ErrNoSession is returned when nobody is signed in.
var ErrNoSession = errors.New("no saved session")

// Store remembers the signed-in identity between runs.
type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at dsn and runs migrations.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect session db: %w", err)
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS identity (
            slot INTEGER PRIMARY KEY CHECK (slot = 1),
            user_id INTEGER NOT NULL,
            username TEXT NOT NULL DEFAULT '',
            full_name TEXT NOT NULL DEFAULT '',
            token TEXT NOT NULL,
            saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("session migrations applied")
	return nil
}

// Save replaces the remembered identity.
func (s *Store) Save(ctx context.Context, id models.Identity) error {
	if id.UserID == 0 || id.Token == "" {
		return errors.New("identity needs a user id and token")
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO identity (slot, user_id, username, full_name, token)
        VALUES (1, :user_id, :username, :full_name, :token)
        ON CONFLICT (slot) DO UPDATE SET user_id = excluded.user_id, username = excluded.username,
        full_name = excluded.full_name, token = excluded.token, saved_at = CURRENT_TIMESTAMP`, id)
	return err
}

// Load returns the remembered identity.
func (s *Store) Load(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	err := s.db.GetContext(ctx, &id, `SELECT user_id, username, full_name, token FROM identity WHERE slot = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, ErrNoSession
	}
	return id, err
}

// Clear forgets the identity, as on logout.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM identity`)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
