package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"qanda/pkg/models"
)

// Backends disagree on field names and shapes; wireComment accepts all of them and
// comment() reduces the result to a models.Comment.
type wireComment struct {
	ID           wireID     `json:"id"`
	MongoID      wireID     `json:"_id"`
	Content      string     `json:"content"`
	Author       wireAuthor `json:"author"`
	AuthorID     wireAuthor `json:"authorId"`
	ParentID     wireID     `json:"parentId"`
	CreatedAt    string     `json:"createdAt"`
	CreationDate string     `json:"creationDate"`
}

// wireID is a string or a number, null reads as empty.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = wireID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: unexpected id %s", ErrMalformedResponse, b)
	}
	*id = wireID(n.String())
	return nil
}

// wireAuthor is either a plain name or an embedded user with name and email.
type wireAuthor struct {
	name string
}

func (a *wireAuthor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		a.name = s
		return nil
	}

	var user struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(b, &user); err == nil {
		a.name = user.Name
		if strings.TrimSpace(a.name) == "" {
			a.name = user.Email
		}
	}

	return nil
}

func (w *wireComment) comment() (*models.Comment, bool) {
	id := firstNonEmpty(string(w.ID), string(w.MongoID))
	if id == "" {
		return nil, false
	}

	author := firstNonEmpty(w.Author.name, w.AuthorID.name)
	if author == "" {
		author = models.AnonymousAuthor
	}

	return &models.Comment{
		ID:        id,
		Content:   w.Content,
		Author:    author,
		CreatedAt: parseTime(firstNonEmpty(w.CreatedAt, w.CreationDate)),
		ParentID:  string(w.ParentID),
	}, true
}

// unwrap strips the {"payload": ...} envelope if there is one.
func unwrap(b []byte) (json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}

	if b[0] == '{' {
		var env struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if env.Payload != nil {
			return unwrap(env.Payload)
		}
	}

	return b, nil
}

func decodeComments(b []byte) ([]*models.Comment, error) {
	payload, err := unwrap(b)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return []*models.Comment{}, nil
	}
	if payload[0] != '[' {
		return nil, fmt.Errorf("%w: want comment list", ErrMalformedResponse)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	comments := make([]*models.Comment, 0, len(items))
	for i, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}

		var w wireComment
		if err := json.Unmarshal(item, &w); err != nil {
			log.Warnf("[client] skipping comment #%d: %v", i, err)
			continue
		}
		c, ok := w.comment()
		if !ok {
			log.Warnf("[client] skipping comment #%d without id", i)
			continue
		}
		comments = append(comments, c)
	}

	return comments, nil
}

func decodeComment(b []byte) (*models.Comment, error) {
	payload, err := unwrap(b)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: want comment object", ErrMalformedResponse)
	}

	var w wireComment
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	c, ok := w.comment()
	if !ok {
		return nil, fmt.Errorf("%w: comment without id", ErrMalformedResponse)
	}

	return c, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
