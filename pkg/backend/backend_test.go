package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"qanda/pkg/client"
	"qanda/pkg/forest"
	"qanda/pkg/models"
	"qanda/pkg/moderation"
	"qanda/pkg/storage"
	"qanda/pkg/storage/memdb"
)

var testTokens = map[string]string{"secret": "alice@example.com"}

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func newTestAPI(t *testing.T) (*API, *memdb.Store) {
	t.Helper()

	mod := moderation.New()
	if err := mod.LoadFromJSON(filepath.Join("..", "moderation", "test_data", "words.json")); err != nil {
		t.Fatalf("failed to load words: %v", err)
	}

	db := memdb.New()
	err := db.ImportComments(context.Background(), []storage.Comment{
		{ID: "q1", CampaignID: "c1", AuthorID: "bob@example.com", Content: "How much raised?", CreationDate: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("failed to seed storage: %v", err)
	}

	return New(db, mod, testTokens), db
}

func TestAPI_commentsHandler(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/projects/c1/comments", nil)
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v", http.StatusOK, rr.Code)
	}

	var resp struct {
		Payload []map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if len(resp.Payload) != 1 {
		t.Fatalf("want 1 comment, got %d", len(resp.Payload))
	}
	for _, field := range []string{"_id", "authorId", "creationDate", "content"} {
		if _, ok := resp.Payload[0][field]; !ok {
			t.Errorf("want field %q in comment, got %v", field, resp.Payload[0])
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/projects/none/comments", nil)
	rr = httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)
	if got := rr.Body.String(); got != "{\"payload\":[]}\n" {
		t.Errorf("want empty payload, got %s", got)
	}
}

func TestAPI_createCommentHandler(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		body       string
		wantStatus int
	}{
		{name: "question", token: "secret", body: `{"content":"Any updates?"}`, wantStatus: http.StatusCreated},
		{name: "answer", token: "secret", body: `{"content":"$500","parentId":"q1"}`, wantStatus: http.StatusCreated},
		{name: "no token", body: `{"content":"hi"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown token", token: "guess", body: `{"content":"hi"}`, wantStatus: http.StatusUnauthorized},
		{name: "invalid JSON", token: "secret", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "blank content", token: "secret", body: `{"content":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "unknown parent", token: "secret", body: `{"content":"hi","parentId":"nope"}`, wantStatus: http.StatusNotFound},
		{name: "banned word", token: "secret", body: `{"content":"what a scam"}`, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, db := newTestAPI(t)

			req := httptest.NewRequest(http.MethodPost, "/projects/c1/comments", bytes.NewBufferString(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			api.Router().ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("want status code %v, got status code %v: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}

			comments, _ := db.Comments(context.Background(), "c1")
			wantCnt := 1
			if tt.wantStatus == http.StatusCreated {
				wantCnt = 2
			}
			if len(comments) != wantCnt {
				t.Errorf("want %d comments stored, got %d", wantCnt, len(comments))
			}
		})
	}
}

// The shell client must read what this backend writes.
func TestAPI_withClient(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	c := client.New(srv.URL, time.Second)
	ctx := client.WithToken(context.Background(), "secret")

	created, err := c.CreateComment(ctx, "c1", models.NewComment{Content: "$500 so far", ParentID: "q1"})
	if err != nil {
		t.Fatalf("unexpected error creating comment: %v", err)
	}
	if created.Author != "alice@example.com" || created.ParentID != "q1" || created.ID == "" {
		t.Errorf("want answer by alice under q1, got %+v", created)
	}

	comments, err := c.Comments(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error reading comments: %v", err)
	}
	questions, dropped := forest.Build(comments)
	if len(dropped) != 0 {
		t.Errorf("want nothing dropped, got %+v", dropped)
	}
	if len(questions) != 1 || len(questions[0].Answers) != 1 || questions[0].Answers[0].ID != created.ID {
		t.Errorf("want q1 with the new answer, got %+v", questions)
	}

	_, err = c.CreateComment(client.WithToken(context.Background(), "guess"), "c1", models.NewComment{Content: "hi"})
	var se *client.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("want status error %d, got %v", http.StatusUnauthorized, err)
	}
}
