package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edulink/internal/models"
	"edulink/internal/relayerr"
	"edulink/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation

const userColumns = `id, first_name, last_name, email, role, is_active, status, created_at`

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email,
		&user.Role, &user.IsActive, &user.Status, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, relayerr.New(relayerr.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) FindByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`

	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(
			&user.ID, &user.FirstName, &user.LastName, &user.Email,
			&user.Role, &user.IsActive, &user.Status, &user.CreatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Message Repository Implementation

const messageColumns = `id, sender_id, receiver_id, sender_role, receiver_role, content, file_ref,
	status, type, delivered_to, seen_by, thread_key, created_at, edited_at, read_at, deleted`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.SenderRole, &m.ReceiverRole,
		&m.Content, &m.FileRef, &m.Status, &m.Type, &m.DeliveredTo, &m.SeenBy,
		&m.ThreadKey, &m.CreatedAt, &m.EditedAt, &m.ReadAt, &m.Deleted,
	)
	if err != nil {
		return nil, err
	}
	m.Participants = []string{m.SenderID, m.ReceiverID}
	return m, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, sender_role, receiver_role,
			content, file_ref, status, type, delivered_to, seen_by, thread_key, created_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false)`

	_, err := db.pool.Exec(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.SenderRole, m.ReceiverRole,
		m.Content, m.FileRef, m.Status, m.Type, m.DeliveredTo, m.SeenBy,
		m.ThreadKey, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, relayerr.New(relayerr.CodeNotFound, "message not found")
	}
	return m, err
}

func (db *PostgresDB) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	query := `UPDATE messages SET content = $2, edited_at = $3 WHERE id = $1`
	_, err := db.pool.Exec(ctx, query, id, content, editedAt)
	return err
}

func (db *PostgresDB) SoftDeleteMessage(ctx context.Context, id string) error {
	query := `UPDATE messages SET content = '', file_ref = '', deleted = true WHERE id = $1`
	_, err := db.pool.Exec(ctx, query, id)
	return err
}

func (db *PostgresDB) MarkMessagesRead(ctx context.Context, ids []string, readerID string, at time.Time) ([]*models.Message, error) {
	// Only the receiver may mark a message read; rows already read are left
	// untouched so repeated calls are idempotent.
	query := `
		UPDATE messages
		SET status = 'read',
			read_at = COALESCE(read_at, $3),
			seen_by = CASE WHEN $2 = ANY(seen_by) THEN seen_by ELSE array_append(seen_by, $2) END,
			delivered_to = CASE WHEN $2 = ANY(delivered_to) THEN delivered_to ELSE array_append(delivered_to, $2) END
		WHERE id = ANY($1) AND receiver_id = $2 AND status = 'unread'
		RETURNING ` + messageColumns

	rows, err := db.pool.Query(ctx, query, ids, readerID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updated []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		updated = append(updated, m)
	}

	return updated, rows.Err()
}

func (db *PostgresDB) AddDelivered(ctx context.Context, id, userID string) error {
	query := `
		UPDATE messages
		SET delivered_to = array_append(delivered_to, $2)
		WHERE id = $1 AND NOT ($2 = ANY(delivered_to))`

	_, err := db.pool.Exec(ctx, query, id, userID)
	return err
}

func (db *PostgresDB) ListThreadMessages(ctx context.Context, threadKey string, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE thread_key = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, threadKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
