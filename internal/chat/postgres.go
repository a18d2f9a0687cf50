package chat

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("chat: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("chat: init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("chat: apply migrations: %w", err)
	}
	return nil
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("chat: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("chat: database connection failed: %w", err)
	}
	return db, nil
}

// PostgresStore stores messages in the messages table. Rows are ordered by
// created_at with the serial seq breaking ties.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a message store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a message and returns it with its database timestamp.
func (s *PostgresStore) Create(ctx context.Context, sender, receiver, content string) (models.Message, error) {
	const query = `
		INSERT INTO messages (id, sender, receiver, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	msg := models.Message{
		ID:       uuid.New().String(),
		Sender:   sender,
		Receiver: receiver,
		Content:  content,
	}
	if err := s.db.QueryRowContext(ctx, query, msg.ID, sender, receiver, content).Scan(&msg.CreatedAt); err != nil {
		return models.Message{}, apperr.Store("chat: insert message", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

// Conversation returns the messages exchanged between a and b.
func (s *PostgresStore) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	const query = `
		SELECT id, sender, receiver, content, created_at
		FROM messages
		WHERE (sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1)
		ORDER BY created_at, seq`

	rows, err := s.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, apperr.Store("chat: query conversation", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Content, &m.CreatedAt); err != nil {
			return nil, apperr.Store("chat: scan message", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("chat: read conversation", err)
	}
	return out, nil
}
