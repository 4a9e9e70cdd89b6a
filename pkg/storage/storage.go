// Package storage defines the comment store behind the development backend.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnectDB       = errors.New("unable to establish DB connection")
	ErrDBNotResponding = errors.New("DB not responding")

	ErrCampaignIDNotProvided = errors.New("campaignID not provided")
	ErrParentCommentNotFound = errors.New("parent comment not found")
)

// Comment is a stored question or answer. The JSON names follow what the campaign
// frontend has always been served.
type Comment struct {
	ID           string    `json:"_id" bson:"_id"`
	CampaignID   string    `json:"campaignId" bson:"campaign_id"`
	ParentID     string    `json:"parentId,omitempty" bson:"parent_id,omitempty"`
	AuthorID     string    `json:"authorId" bson:"author_id"`
	Content      string    `json:"content" bson:"content"`
	CreationDate time.Time `json:"creationDate" bson:"creation_date"`
}

type Storage interface {
	// Comments returns the comments of a campaign, oldest first.
	Comments(ctx context.Context, campaignID string) ([]Comment, error)
	// CreateComment stores c, filling in ID and CreationDate when they are empty.
	CreateComment(ctx context.Context, c Comment) (Comment, error)
	// ImportComments stores comments as given, skipping IDs that already exist.
	ImportComments(ctx context.Context, comments []Comment) error
	Ping(ctx context.Context) error
}
