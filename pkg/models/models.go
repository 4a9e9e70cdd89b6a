package models

import "time"

const (
	AnonymousAuthor = "anonymous"
	LocalAuthor     = "You"

	// MaxQuestionLength limits root questions only, counted in characters.
	MaxQuestionLength = 500
)

type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	ParentID  string    `json:"parentId,omitempty"`
	IsLocal   bool      `json:"isLocal,omitempty"`
}

// Question is a root comment. Answers are plain comments, so a discussion never
// grows deeper than two levels.
type Question struct {
	Comment
	Answers []Comment `json:"answers"`
}

// Forest is a snapshot of a discussion, safe to hand out to callers.
type Forest []Question

// Len returns the number of nodes in the forest, questions and answers together.
func (f Forest) Len() int {
	n := len(f)
	for _, q := range f {
		n += len(q.Answers)
	}
	return n
}

// NewComment is the body posted to the backend.
type NewComment struct {
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}
