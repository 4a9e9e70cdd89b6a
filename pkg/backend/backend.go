// Package backend is a development stand-in for the campaign comments API.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"qanda/pkg/client"
	"qanda/pkg/logger"
	"qanda/pkg/models"
	"qanda/pkg/storage"
)

type ctxKeyRequestID struct{}

var RequestIDKey = ctxKeyRequestID{}

// Moderator decides whether a comment may be published.
type Moderator interface {
	Match(text string) (word string, found bool)
}

// Envelope wraps every response body the way the production API does.
type Envelope struct {
	Payload any `json:"payload"`
}

type API struct {
	r      *mux.Router
	db     storage.Storage
	mod    Moderator
	tokens map[string]string
}

// New returns the backend API. tokens maps accepted bearer tokens to the email that
// becomes the author of comments posted with them. mod may be nil.
func New(db storage.Storage, mod Moderator, tokens map[string]string) *API {
	api := API{
		r:      mux.NewRouter(),
		db:     db,
		mod:    mod,
		tokens: tokens,
	}
	api.endpoints()

	return &api
}

func (api *API) Router() *mux.Router {
	return api.r
}

func (api *API) endpoints() {
	api.r.Use(api.requestIDMiddleware)
	api.r.Use(api.headerMiddleware)

	api.r.HandleFunc("/projects/{id}/comments", api.commentsHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/projects/{id}/comments", api.createCommentHandler).Methods(http.MethodPost)
	api.r.HandleFunc("/health", api.healthHandler).Methods(http.MethodGet)
}

func (api *API) commentsHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(getRequestID(r.Context()))
	campaignID := mux.Vars(r)["id"]

	comments, err := api.db.Comments(r.Context(), campaignID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[commentsHandler][%s] failed to read comments of campaign %s: %v", sID, campaignID, err)
		return
	}

	if err := json.NewEncoder(w).Encode(Envelope{Payload: comments}); err != nil {
		log.Errorf("[commentsHandler][%s] failed to encode response data: %v", sID, err)
		return
	}
	log.Debugf("[commentsHandler][%s] %d comments of campaign %s sent to: %v", sID, len(comments), campaignID, r.RemoteAddr)
}

func (api *API) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(getRequestID(r.Context()))
	campaignID := mux.Vars(r)["id"]

	author, ok := api.tokens[client.BearerToken(r)]
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		log.Debugf("[createCommentHandler][%s] rejected request with unknown token from %v", sID, r.RemoteAddr)
		return
	}

	var req models.NewComment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		log.Debugf("[createCommentHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	defer r.Body.Close()

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		http.Error(w, "Bad Request: empty content", http.StatusBadRequest)
		return
	}

	if api.mod != nil {
		if word, found := api.mod.Match(req.Content); found {
			http.Error(w, "Comment rejected by moderation", http.StatusUnprocessableEntity)
			log.Infof("[createCommentHandler][%s] comment to campaign %s rejected, matched %q", sID, campaignID, word)
			return
		}
	}

	c, err := api.db.CreateComment(r.Context(), storage.Comment{
		CampaignID: campaignID,
		ParentID:   req.ParentID,
		AuthorID:   author,
		Content:    req.Content,
	})
	switch {
	case errors.Is(err, storage.ErrParentCommentNotFound):
		http.Error(w, "Parent comment not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrCampaignIDNotProvided):
		http.Error(w, "Bad Request: campaign not provided", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[createCommentHandler][%s] failed to store comment: %v", sID, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(Envelope{Payload: c}); err != nil {
		log.Errorf("[createCommentHandler][%s] failed to encode response data: %v", sID, err)
		return
	}
	log.Debugf("[createCommentHandler][%s] comment %s stored in campaign %s", sID, c.ID, campaignID)
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.db.Ping(r.Context()); err != nil {
		http.Error(w, storage.ErrDBNotResponding.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				log.Errorf("[requestIDMiddleware] failed to generate request ID for %v: %v", r.RemoteAddr, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			reqID = id.String()
		}

		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), RequestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (api *API) headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func getRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
