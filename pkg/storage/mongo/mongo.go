package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"qanda/pkg/storage"
)

const commentsColl = "comments"

type Storage struct {
	client *mongo.Client
	dbName string
}

func New(ctx context.Context, conf *Config) (*Storage, error) {
	client, err := mongo.Connect(ctx, conf.Options())
	if err != nil {
		return nil, err
	}

	s := Storage{client: client, dbName: conf.DBName}
	if err := s.createCollection(ctx, commentsColl); err != nil {
		log.Warnf("[mongo] unable to prepare %q collection: %v", commentsColl, err)
	}

	return &s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Storage) Close(ctx context.Context) {
	s.client.Disconnect(ctx)
}

// CreateComment inserts a new comment into the database.
//
// CampaignID is required and a ParentID, if set, must name a comment of the same campaign.
// Empty ID and CreationDate are generated here.
func (s *Storage) CreateComment(ctx context.Context, c storage.Comment) (storage.Comment, error) {
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
	// Mongo keeps milliseconds only.
	c.CreationDate = c.CreationDate.Truncate(time.Millisecond)

	coll := s.client.Database(s.dbName).Collection(commentsColl)

	if c.ParentID != "" {
		cnt, err := coll.CountDocuments(ctx, bson.M{
			"_id":         c.ParentID,
			"campaign_id": c.CampaignID,
		})
		if err != nil {
			return storage.Comment{}, err
		}
		if cnt == 0 {
			return storage.Comment{}, storage.ErrParentCommentNotFound
		}
	}

	_, err := coll.InsertOne(ctx, c)
	if err != nil {
		return storage.Comment{}, err
	}

	return c, nil
}

// ImportComments inserts comments unordered, so existing IDs are skipped and the rest stored.
func (s *Storage) ImportComments(ctx context.Context, comments []storage.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	docs := make([]any, 0, len(comments))
	for _, c := range comments {
		c.CreationDate = c.CreationDate.UTC().Truncate(time.Millisecond)
		docs = append(docs, c)
	}

	coll := s.client.Database(s.dbName).Collection(commentsColl)
	_, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}

	return nil
}

// Comments returns the flat comment list of a campaign sorted by creation date ascending.
func (s *Storage) Comments(ctx context.Context, campaignID string) ([]storage.Comment, error) {
	if campaignID == "" {
		return nil, storage.ErrCampaignIDNotProvided
	}

	coll := s.client.Database(s.dbName).Collection(commentsColl)
	opts := options.Find().SetSort(bson.D{{Key: "creation_date", Value: 1}})

	cur, err := coll.Find(ctx, bson.M{"campaign_id": campaignID}, opts)
	if err != nil {
		return nil, err
	}

	comments := []storage.Comment{}
	if err := cur.All(ctx, &comments); err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].CreationDate = comments[i].CreationDate.UTC()
	}

	return comments, nil
}

// createCollection creates a collection with the given name in the database if it doesn't already exist.
func (s *Storage) createCollection(ctx context.Context, collName string) error {
	collExists, err := collectionExists(ctx, s.client.Database(s.dbName), collName)
	if err != nil {
		return err
	}

	if !collExists {
		err := s.client.Database(s.dbName).CreateCollection(ctx, collName)
		if err != nil {
			return err
		}
	}

	return nil
}

// collectionExists checks if a collection with the given name exists in the database.
func collectionExists(ctx context.Context, db *mongo.Database, collName string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return false, fmt.Errorf("failed to list collection names: %w", err)
	}

	for _, name := range names {
		if name == collName {
			return true, nil
		}
	}

	return false, nil
}
