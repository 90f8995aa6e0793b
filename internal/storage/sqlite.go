package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrCampaignMismatch is returned when an upsert would move an entity to
	// another campaign
	ErrCampaignMismatch = errors.New("entity belongs to another campaign")
)

// SQLiteStorage implements the Store interface using SQLite
type SQLiteStorage struct {
	db        *sql.DB
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a SQLiteStorage
type Option func(*SQLiteStorage)

// WithPublisher publishes a change event after every successful write
func WithPublisher(p Publisher) Option {
	return func(s *SQLiteStorage) { s.publisher = p }
}

// WithLogger sets the logger used for publish failures
func WithLogger(log zerolog.Logger) Option {
	return func(s *SQLiteStorage) { s.log = log }
}

// WithClock overrides the timestamp source (tests)
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; it also keeps :memory: databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStorage{
		db:  db,
		log: zerolog.Nop(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// publish forwards a change event to the configured publisher.
// A failed publish never fails the write; the poll backstop covers the gap.
func (s *SQLiteStorage) publish(ctx context.Context, evt types.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).
			Str("entity", string(evt.EntityType)).
			Str("op", string(evt.Operation)).
			Str("id", evt.EntityID).
			Msg("change event publish failed")
	}
}

// Detail item operations

const detailItemColumns = `
	d.id, d.campaign_id, d.slug, d.name, d.category, d.description, d.metadata,
	d.source_session_id, d.ai_confidence, d.is_ai_generated, d.created_by,
	d.created_at, d.updated_at`

// QueryDetailItems returns detail items matching the query predicates
func (s *SQLiteStorage) QueryDetailItems(ctx context.Context, q ItemQuery) ([]types.DetailItem, error) {
	if q.CampaignID == "" {
		return nil, types.ErrMissingCampaignID
	}

	query := `SELECT ` + detailItemColumns + ` FROM detail_items d WHERE d.campaign_id = ?`
	args := []interface{}{q.CampaignID}

	query, args = applyItemFilters(query, args, q)

	switch q.Match {
	case MatchSubstring:
		pattern := "%" + escapeLike(strings.TrimSpace(q.Text)) + "%"
		query += ` AND (d.name LIKE ? ESCAPE '\' OR COALESCE(d.description, '') LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	case MatchFullText:
		match := buildFTSMatch(q.Text)
		if match == "" {
			return []types.DetailItem{}, nil
		}
		query += ` AND d.rowid IN (SELECT rowid FROM detail_items_fts WHERE detail_items_fts MATCH ?)`
		args = append(args, match)
	}

	query += buildOrderClause(q)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.DetailItem, 0)
	for rows.Next() {
		item, err := scanDetailItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetDetailItem loads a single detail item
func (s *SQLiteStorage) GetDetailItem(ctx context.Context, campaignID, id string) (*types.DetailItem, error) {
	return s.getDetailItemWithQuerier(ctx, s.db, campaignID, id)
}

// getDetailItemWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDetailItemWithQuerier(ctx context.Context, q querier, campaignID, id string) (*types.DetailItem, error) {
	query := `SELECT ` + detailItemColumns + ` FROM detail_items d WHERE d.campaign_id = ? AND d.id = ?`
	item, err := scanDetailItem(q.QueryRowContext(ctx, query, campaignID, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return item, err
}

// UpsertDetailItem inserts or updates a detail item and publishes the change
func (s *SQLiteStorage) UpsertDetailItem(ctx context.Context, item *types.DetailItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT campaign_id FROM detail_items WHERE id = ?`, item.ID).Scan(&existing)
	exists := err == nil
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to check detail item: %w", err)
	case existing != item.CampaignID:
		return fmt.Errorf("%w: %s is in %s", ErrCampaignMismatch, item.ID, existing)
	}

	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return err
	}

	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `
		INSERT INTO detail_items (
			id, campaign_id, slug, name, category, description, metadata,
			source_session_id, ai_confidence, is_ai_generated, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			metadata = excluded.metadata,
			source_session_id = excluded.source_session_id,
			ai_confidence = excluded.ai_confidence,
			is_ai_generated = excluded.is_ai_generated,
			updated_at = excluded.updated_at
		RETURNING created_at
	`
	var createdAt int64
	err = tx.QueryRowContext(ctx, query,
		item.ID, item.CampaignID, item.Slug, item.Name, string(item.Category), item.Description, metadata,
		item.SourceSessionID, item.AIConfidence, item.IsAIGenerated, item.CreatedBy,
		item.CreatedAt.UnixNano(), item.UpdatedAt.UnixNano(),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert detail item: %w", err)
	}
	item.CreatedAt = time.Unix(0, createdAt).UTC()

	if err := tx.Commit(); err != nil {
		return err
	}

	op := types.OpInsert
	if exists {
		op = types.OpUpdate
	}
	s.publish(ctx, types.ChangeEvent{
		EntityType: types.EntityDetailItems,
		Operation:  op,
		EntityID:   item.ID,
		Payload:    item.Clone(),
	})
	return nil
}

// DeleteDetailItem removes a detail item and publishes a delete event
// carrying the last known row so campaign-filtered subscribers can match it
func (s *SQLiteStorage) DeleteDetailItem(ctx context.Context, campaignID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	item, err := s.getDetailItemWithQuerier(ctx, tx, campaignID, id)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM detail_items WHERE campaign_id = ? AND id = ?`, campaignID, id); err != nil {
		return fmt.Errorf("failed to delete detail item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.publish(ctx, types.ChangeEvent{
		EntityType: types.EntityDetailItems,
		Operation:  types.OpDelete,
		EntityID:   id,
		Payload:    *item,
	})
	return nil
}

// Session message operations

// ListSessionMessages returns a session transcript ordered by created_at ascending
func (s *SQLiteStorage) ListSessionMessages(ctx context.Context, sessionID string) ([]types.SessionMessage, error) {
	if sessionID == "" {
		return nil, types.ErrMissingSessionID
	}

	query := `
		SELECT m.id, m.session_id, m.user_id, m.content, m.message_type, m.created_at,
		       COALESCE(p.display_name, ''), p.avatar_url
		FROM session_messages m
		LEFT JOIN user_profiles p ON p.id = m.user_id
		WHERE m.session_id = ?
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]types.SessionMessage, 0)
	for rows.Next() {
		var msg types.SessionMessage
		var msgType string
		var createdAt int64
		var avatar sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &msg.Content, &msgType,
			&createdAt, &msg.Author.DisplayName, &avatar); err != nil {
			return nil, err
		}
		msg.Type = types.MessageType(msgType)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		if avatar.Valid {
			msg.Author.AvatarURL = &avatar.String
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendSessionMessage stores a new transcript entry and publishes an insert event
func (s *SQLiteStorage) AppendSessionMessage(ctx context.Context, msg *types.SessionMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = types.MessageText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO session_messages (id, session_id, user_id, content, message_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.UserID, msg.Content, string(msg.Type), msg.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to append session message: %w", err)
	}

	// Decorate with the author like the transcript query does
	profiles, err := s.GetUserProfiles(ctx, []string{msg.UserID})
	if err == nil && len(profiles) == 1 {
		msg.Author = profiles[0].AsAuthor()
	}

	s.publish(ctx, types.ChangeEvent{
		EntityType: types.EntitySessionMessages,
		Operation:  types.OpInsert,
		EntityID:   msg.ID,
		Payload:    msg.Clone(),
	})
	return nil
}

// User profile operations

// UpsertUserProfile inserts or updates a profile and publishes the change
func (s *SQLiteStorage) UpsertUserProfile(ctx context.Context, profile *types.UserProfile) error {
	if profile.ID == "" {
		return types.ErrMissingID
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_profiles WHERE id = ?`, profile.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user profile: %w", err)
	}

	query := `
		INSERT INTO user_profiles (id, display_name, avatar_url) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url
	`
	if _, err := s.db.ExecContext(ctx, query, profile.ID, profile.DisplayName, profile.AvatarURL); err != nil {
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}

	op := types.OpInsert
	if exists > 0 {
		op = types.OpUpdate
	}
	s.publish(ctx, types.ChangeEvent{
		EntityType: types.EntityUserProfiles,
		Operation:  op,
		EntityID:   profile.ID,
		Payload:    *profile,
	})
	return nil
}

// GetUserProfiles loads the profiles for the given user ids; unknown ids are skipped
func (s *SQLiteStorage) GetUserProfiles(ctx context.Context, ids []string) ([]types.UserProfile, error) {
	if len(ids) == 0 {
		return []types.UserProfile{}, nil
	}

	query := `SELECT id, display_name, avatar_url FROM user_profiles WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	profiles := make([]types.UserProfile, 0, len(ids))
	for rows.Next() {
		var p types.UserProfile
		var avatar sql.NullString
		if err := rows.Scan(&p.ID, &p.DisplayName, &avatar); err != nil {
			return nil, err
		}
		if avatar.Valid {
			p.AvatarURL = &avatar.String
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDetailItem reads one detail item row in detailItemColumns order
func scanDetailItem(row rowScanner) (*types.DetailItem, error) {
	var item types.DetailItem
	var category string
	var description, metadata, sourceSession, createdBy sql.NullString
	var confidence sql.NullFloat64
	var createdAt, updatedAt int64

	err := row.Scan(
		&item.ID, &item.CampaignID, &item.Slug, &item.Name, &category, &description, &metadata,
		&sourceSession, &confidence, &item.IsAIGenerated, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Category = types.Category(category)
	item.CreatedAt = time.Unix(0, createdAt).UTC()
	item.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if description.Valid {
		item.Description = &description.String
	}
	if sourceSession.Valid {
		item.SourceSessionID = &sourceSession.String
	}
	if createdBy.Valid {
		item.CreatedBy = &createdBy.String
	}
	if confidence.Valid {
		item.AIConfidence = &confidence.Float64
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", item.ID, err)
		}
	}
	return &item, nil
}

// encodeMetadata serializes metadata for storage; nil maps stay NULL
func encodeMetadata(m map[string]string) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(raw), nil
}

// isUniqueViolation detects primary key conflicts across both SQLite drivers
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
