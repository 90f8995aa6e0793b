package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Store implements storage.Store on Postgres
type Store struct {
	pool      *pgxpool.Pool
	publisher storage.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open creates a connection pool for dsn and verifies connectivity
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewStore migrates the schema and returns a store over pool
func NewStore(ctx context.Context, pool *pgxpool.Pool, publisher storage.Publisher, log zerolog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("nil pool")
	}
	if err := ApplyMigrations(ctx, pool); err != nil {
		return nil, err
	}
	return &Store{
		pool:      pool,
		publisher: publisher,
		log:       log.With().Str("component", "storage.postgres").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) publish(ctx context.Context, evt types.ChangeEvent) {
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

// QueryDetailItems returns detail items matching the query predicates
func (s *Store) QueryDetailItems(ctx context.Context, q storage.ItemQuery) ([]types.DetailItem, error) {
	if q.CampaignID == "" {
		return nil, types.ErrMissingCampaignID
	}

	query, args, ok := buildItemQuery(q)
	if !ok {
		return []types.DetailItem{}, nil
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail items: %w", err)
	}
	defer rows.Close()

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
func (s *Store) GetDetailItem(ctx context.Context, campaignID, id string) (*types.DetailItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+detailItemColumns+` FROM detail_items WHERE campaign_id = $1 AND id = $2`, campaignID, id)
	item, err := scanDetailItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return item, err
}

// UpsertDetailItem inserts or updates a detail item and publishes the change
func (s *Store) UpsertDetailItem(ctx context.Context, item *types.DetailItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return err
	}

	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	var metadata []byte
	if len(item.Metadata) > 0 {
		raw, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = raw
	}

	// xmax = 0 only for freshly inserted rows
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO detail_items (
			id, campaign_id, slug, name, category, description, metadata,
			source_session_id, ai_confidence, is_ai_generated, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			metadata = EXCLUDED.metadata,
			source_session_id = EXCLUDED.source_session_id,
			ai_confidence = EXCLUDED.ai_confidence,
			is_ai_generated = EXCLUDED.is_ai_generated,
			updated_at = EXCLUDED.updated_at
		WHERE detail_items.campaign_id = EXCLUDED.campaign_id
		RETURNING created_at, (xmax = 0)
	`,
		item.ID, item.CampaignID, item.Slug, item.Name, string(item.Category), item.Description, metadata,
		item.SourceSessionID, item.AIConfidence, item.IsAIGenerated, item.CreatedBy,
		item.CreatedAt, item.UpdatedAt,
	).Scan(&item.CreatedAt, &inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict guard skipped the update
		return fmt.Errorf("%w: %s", storage.ErrCampaignMismatch, item.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert detail item: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()

	op := types.OpUpdate
	if inserted {
		op = types.OpInsert
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
// carrying the deleted row
func (s *Store) DeleteDetailItem(ctx context.Context, campaignID, id string) error {
	row := s.pool.QueryRow(ctx, `DELETE FROM detail_items WHERE campaign_id = $1 AND id = $2 RETURNING `+detailItemColumns, campaignID, id)
	item, err := scanDetailItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete detail item: %w", err)
	}

	s.publish(ctx, types.ChangeEvent{
		EntityType: types.EntityDetailItems,
		Operation:  types.OpDelete,
		EntityID:   id,
		Payload:    *item,
	})
	return nil
}

// ListSessionMessages returns a session transcript ordered by created_at ascending
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string) ([]types.SessionMessage, error) {
	if sessionID == "" {
		return nil, types.ErrMissingSessionID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.session_id, m.user_id, m.content, m.message_type, m.created_at,
		       COALESCE(p.display_name, ''), p.avatar_url
		FROM session_messages m
		LEFT JOIN user_profiles p ON p.id = m.user_id
		WHERE m.session_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	defer rows.Close()

	messages := make([]types.SessionMessage, 0)
	for rows.Next() {
		var msg types.SessionMessage
		var msgType string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &msg.Content, &msgType,
			&msg.CreatedAt, &msg.Author.DisplayName, &msg.Author.AvatarURL); err != nil {
			return nil, err
		}
		msg.Type = types.MessageType(msgType)
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendSessionMessage stores a new transcript entry and publishes an insert event
func (s *Store) AppendSessionMessage(ctx context.Context, msg *types.SessionMessage) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_messages (id, session_id, user_id, content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.SessionID, msg.UserID, msg.Content, string(msg.Type), msg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to append session message: %w", err)
	}

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

// UpsertUserProfile inserts or updates a profile and publishes the change
func (s *Store) UpsertUserProfile(ctx context.Context, profile *types.UserProfile) error {
	if profile.ID == "" {
		return types.ErrMissingID
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_profiles (id, display_name, avatar_url) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url
		RETURNING (xmax = 0)
	`, profile.ID, profile.DisplayName, profile.AvatarURL).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}

	op := types.OpUpdate
	if inserted {
		op = types.OpInsert
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
func (s *Store) GetUserProfiles(ctx context.Context, ids []string) ([]types.UserProfile, error) {
	if len(ids) == 0 {
		return []types.UserProfile{}, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id, display_name, avatar_url FROM user_profiles WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]types.UserProfile, 0, len(ids))
	for rows.Next() {
		var p types.UserProfile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// scanDetailItem scans a detail item row
func scanDetailItem(row pgx.Row) (*types.DetailItem, error) {
	var item types.DetailItem
	var category string
	var metadata []byte

	err := row.Scan(
		&item.ID, &item.CampaignID, &item.Slug, &item.Name, &category, &item.Description, &metadata,
		&item.SourceSessionID, &item.AIConfidence, &item.IsAIGenerated, &item.CreatedBy,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Category = types.Category(category)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &item, nil
}

// isUniqueViolation reports a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
