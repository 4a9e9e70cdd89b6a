package postgres

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"qanda/pkg/storage"
)

const defaultPostgresPass = "some_pass"
const defaultPostgresPort = "5432"

func postgresConf() Config {
	pass := os.Getenv("POSTGRES_PASSWORD")
	if pass == "" {
		pass = defaultPostgresPass
	}

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = defaultPostgresPort
	}

	conf := Config{
		User:     "postgres",
		Password: pass,
		Host:     "localhost",
		Port:     port,
		DBName:   "qanda_test",
	}

	return conf
}

// storageConnect connects to the test database, skipping the test when it is not running.
func storageConnect(t *testing.T) *Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conf := postgresConf()
	db, err := New(ctx, conf.ConString())
	if err != nil {
		t.Skipf("%v: %v", storage.ErrConnectDB, err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		t.Skipf("%v: %v", storage.ErrDBNotResponding, err)
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		t.Fatalf("unexpected error creating schema: %v", err)
	}

	t.Cleanup(func() {
		_, err := db.db.Exec(context.Background(), "TRUNCATE TABLE comments")
		if err != nil {
			t.Errorf("unexpected error clearing comments table: %v", err)
		}

		db.Close()
	})

	return db
}

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func TestStore_CreateComment(t *testing.T) {
	db := storageConnect(t)
	ctx := context.Background()

	question := storage.Comment{
		ID:           "q1",
		CampaignID:   "c1",
		AuthorID:     "alice@example.com",
		Content:      "How much raised?",
		CreationDate: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	got, err := db.CreateComment(ctx, question)
	if err != nil {
		t.Fatalf("unexpected error adding comment: %v", err)
	}
	if !reflect.DeepEqual(question, got) {
		t.Errorf("want comment\n%+v\ngot comment\n%+v\n", question, got)
	}

	tests := []struct {
		name    string
		comment storage.Comment
		wantErr error
	}{
		{name: "answer", comment: storage.Comment{CampaignID: "c1", ParentID: "q1", Content: "$500"}},
		{name: "no campaign", comment: storage.Comment{Content: "hi"}, wantErr: storage.ErrCampaignIDNotProvided},
		{name: "unknown parent", comment: storage.Comment{CampaignID: "c1", ParentID: "nope", Content: "hi"}, wantErr: storage.ErrParentCommentNotFound},
		{name: "parent in another campaign", comment: storage.Comment{CampaignID: "c2", ParentID: "q1", Content: "hi"}, wantErr: storage.ErrParentCommentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateComment(ctx, tt.comment)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("want error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStore_Comments(t *testing.T) {
	db := storageConnect(t)
	ctx := context.Background()

	testComments := []storage.Comment{
		{ID: "q1", CampaignID: "c1", AuthorID: "alice@example.com", Content: "How much raised?", CreationDate: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "a1", CampaignID: "c1", ParentID: "q1", AuthorID: "bob@example.com", Content: "$500 so far", CreationDate: time.Date(2025, 5, 1, 10, 5, 0, 0, time.UTC)},
		{ID: "x1", CampaignID: "c2", AuthorID: "carol@example.com", Content: "Other campaign", CreationDate: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)},
	}

	if err := db.ImportComments(ctx, testComments); err != nil {
		t.Fatalf("unexpected error importing comments: %v", err)
	}
	// Importing again must not duplicate anything.
	if err := db.ImportComments(ctx, testComments); err != nil {
		t.Fatalf("unexpected error importing comments twice: %v", err)
	}

	got, err := db.Comments(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error retrieving comments: %v", err)
	}
	want := testComments[:2]
	if !reflect.DeepEqual(want, got) {
		t.Errorf("want comments\n%+v\ngot comments\n%+v\n", want, got)
	}

	got, err = db.Comments(ctx, "empty")
	if err != nil {
		t.Fatalf("unexpected error retrieving comments: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want no comments, got %+v", got)
	}
}
