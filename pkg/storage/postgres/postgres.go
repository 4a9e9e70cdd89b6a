package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"qanda/pkg/storage"
)

const schema = `
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		parent_id TEXT,
		author_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		creation_date TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS comments_campaign_idx ON comments (campaign_id, creation_date);
`

type Store struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, conStr string) (*Store, error) {
	db, err := pgxpool.Connect(ctx, conStr)
	if err != nil {
		return nil, err
	}
	s := Store{
		db: db,
	}

	return &s, nil
}

// Init creates the comments table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}

// CreateComment inserts a comment inside a transaction that first checks the parent belongs
// to the same campaign. Empty ID and CreationDate are generated here.
func (s *Store) CreateComment(ctx context.Context, c storage.Comment) (storage.Comment, error) {
	if c.CampaignID == "" {
		return storage.Comment{}, storage.ErrCampaignIDNotProvided
	}

	if c.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return storage.Comment{}, err
		}
		c.ID = id.String()
	}
	if c.CreationDate.IsZero() {
		c.CreationDate = time.Now().UTC()
	}
	// Postgres keeps microseconds only.
	c.CreationDate = c.CreationDate.Truncate(time.Microsecond)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storage.Comment{}, err
	}
	defer tx.Rollback(ctx)

	if c.ParentID != "" {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1 AND campaign_id = $2)
		`,
			c.ParentID,
			c.CampaignID,
		).Scan(&exists)
		if err != nil {
			return storage.Comment{}, err
		}
		if !exists {
			return storage.Comment{}, storage.ErrParentCommentNotFound
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO comments (id, campaign_id, parent_id, author_id, content, creation_date)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`,
		c.ID,
		c.CampaignID,
		c.ParentID,
		c.AuthorID,
		c.Content,
		c.CreationDate,
	)
	if err != nil {
		return storage.Comment{}, err
	}

	return c, tx.Commit(ctx)
}

// Comments returns the comments of a campaign ordered by creation date ascending.
func (s *Store) Comments(ctx context.Context, campaignID string) ([]storage.Comment, error) {
	if campaignID == "" {
		return nil, storage.ErrCampaignIDNotProvided
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, campaign_id, COALESCE(parent_id, ''), author_id, content, creation_date
		FROM comments
		WHERE campaign_id = $1
		ORDER BY creation_date ASC, id ASC
	`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []storage.Comment{}
	for rows.Next() {
		var c storage.Comment
		err := rows.Scan(
			&c.ID,
			&c.CampaignID,
			&c.ParentID,
			&c.AuthorID,
			&c.Content,
			&c.CreationDate,
		)
		if err != nil {
			return nil, err
		}
		c.CreationDate = c.CreationDate.UTC()
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return comments, nil
}

// ImportComments stores a batch of comments in one transaction, skipping IDs already present.
// It is used to seed a campaign from a JSON export.
func (s *Store) ImportComments(ctx context.Context, comments []storage.Comment) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := new(pgx.Batch)
	for _, c := range comments {
		batch.Queue(`
			INSERT INTO comments (id, campaign_id, parent_id, author_id, content, creation_date)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`,
			c.ID,
			c.CampaignID,
			c.ParentID,
			c.AuthorID,
			c.Content,
			c.CreationDate.UTC(),
		)
	}

	res := tx.SendBatch(ctx, batch)
	if err := res.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
