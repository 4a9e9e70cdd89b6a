package api

import (
	"time"

	"qanda/pkg/models"
)

type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	StatusCode int       `json:"status_code"`
	Bytes      int       `json:"bytes"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Duration   float64   `json:"duration_sec"`
	Service    string    `json:"service"`
}

type DiscussionResponse struct {
	CampaignID string        `json:"campaignId"`
	Questions  models.Forest `json:"questions"`
	Notice     string        `json:"notice,omitempty"`
}

// SubmitRequest posts Content, or the stored draft of the box when Content is absent.
type SubmitRequest struct {
	Content  *string `json:"content"`
	ParentID string  `json:"parentId"`
}

type SubmitResponse struct {
	Comment   models.Comment `json:"comment"`
	Local     bool           `json:"local"`
	Notice    string         `json:"notice,omitempty"`
	Questions models.Forest  `json:"questions"`
}

type DraftRequest struct {
	ParentID string `json:"parentId"`
	Text     string `json:"text"`
}
