package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatterbox/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrUsernameTaken reports a unique-constraint violation on users.username.
// The constraint is the only source of truth for conflicts; callers must not
// treat a prior existence check as a guarantee.
var ErrUsernameTaken = errors.New("username already exists")

// Store is the single owned access point for users and messages. Every
// service shares one instance; nothing opens its own database handle.
type Store struct {
	db *sql.DB
}

// New wraps the shared database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts one user row and returns its id. A duplicate username
// surfaces as ErrUsernameTaken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}
	return id, nil
}

// GetUserByUsername returns the stored record including the password hash,
// or (nil, nil) when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// AddMessage inserts one message row with a server-assigned id and timestamp.
func (s *Store) AddMessage(ctx context.Context, fromUser, toUser, subject, body string) (*models.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (from_user, to_user, subject, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		fromUser, toUser, subject, body, now,
	)
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{
		ID:        id,
		FromUser:  fromUser,
		ToUser:    toUser,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
	}, nil
}

// MessagesForUser lists messages addressed to the username, newest first.
// Creation-time ties break on id descending (insertion order).
func (s *Store) MessagesForUser(ctx context.Context, username string) ([]*models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, from_user, to_user, subject, body, created_at
		 FROM messages WHERE to_user = ?
		 ORDER BY created_at DESC, id DESC`, username)
}

// MessagesFromUser lists messages authored by the username, newest first.
func (s *Store) MessagesFromUser(ctx context.Context, username string) ([]*models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, from_user, to_user, subject, body, created_at
		 FROM messages WHERE from_user = ?
		 ORDER BY created_at DESC, id DESC`, username)
}

func (s *Store) queryMessages(ctx context.Context, query, username string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.FromUser, &msg.ToUser, &msg.Subject, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ListOtherUsernames returns every known username except the given one,
// ascending lexicographic.
func (s *Store) ListOtherUsernames(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username FROM users WHERE username != ? ORDER BY username ASC`, username)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}
	defer rows.Close()

	usernames := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		usernames = append(usernames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return usernames, nil
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
