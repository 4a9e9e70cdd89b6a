package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"qanda/pkg/storage"
)

type Store struct {
	mu       sync.Mutex
	comments map[string][]storage.Comment
}

func New() *Store {
	db := Store{
		comments: make(map[string][]storage.Comment),
	}

	return &db
}

func (db *Store) Ping(ctx context.Context) error {
	return nil
}

func (db *Store) CreateComment(ctx context.Context, c storage.Comment) (storage.Comment, error) {
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

	db.mu.Lock()
	defer db.mu.Unlock()

	if c.ParentID != "" && !db.exists(c.CampaignID, c.ParentID) {
		return storage.Comment{}, storage.ErrParentCommentNotFound
	}
	db.comments[c.CampaignID] = append(db.comments[c.CampaignID], c)

	return c, nil
}

func (db *Store) ImportComments(ctx context.Context, comments []storage.Comment) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, c := range comments {
		if c.CampaignID == "" {
			return storage.ErrCampaignIDNotProvided
		}
		if db.exists(c.CampaignID, c.ID) {
			continue
		}
		db.comments[c.CampaignID] = append(db.comments[c.CampaignID], c)
	}

	return nil
}

// exists must be called with mu held.
func (db *Store) exists(campaignID, id string) bool {
	for _, c := range db.comments[campaignID] {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (db *Store) Comments(ctx context.Context, campaignID string) ([]storage.Comment, error) {
	if campaignID == "" {
		return nil, storage.ErrCampaignIDNotProvided
	}

	db.mu.Lock()
	comments := make([]storage.Comment, len(db.comments[campaignID]))
	copy(comments, db.comments[campaignID])
	db.mu.Unlock()

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreationDate.Before(comments[j].CreationDate)
	})

	return comments, nil
}
