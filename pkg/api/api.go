// Package api serves mounted discussions to the campaign pages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"qanda/pkg/discussion"
	"qanda/pkg/logger"
	"qanda/pkg/models"
)

type API struct {
	ServiceName string

	r     *mux.Router
	views *discussion.Registry
	kw    *kafka.Writer
}

func New(name string, views *discussion.Registry, kafkaWriter *kafka.Writer) *API {
	api := API{
		ServiceName: name,
		r:           mux.NewRouter(),
		views:       views,
		kw:          kafkaWriter,
	}
	api.endpoints()

	return &api
}

func (api *API) Router() *mux.Router {
	return api.r
}

func (api *API) endpoints() {
	api.r.Use(api.requestIDMiddleware)
	api.r.Use(api.sessionMiddleware)
	api.r.Use(api.headerMiddleware)

	if api.kw != nil {
		api.r.Use(api.loggingMiddleware(api.kw))
	}

	api.r.HandleFunc("/campaigns/{id}/discussion", api.discussionHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/campaigns/{id}/discussion", api.submitHandler).Methods(http.MethodPost)
	api.r.HandleFunc("/campaigns/{id}/discussion/drafts", api.draftHandler).Methods(http.MethodPut)
	api.r.HandleFunc("/campaigns/{id}/discussion/notice", api.dismissNoticeHandler).Methods(http.MethodDelete)
	api.r.HandleFunc("/session", api.unmountHandler).Methods(http.MethodDelete)

	api.r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (api *API) discussionHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(GetRequestID(r.Context()))
	campaignID := mux.Vars(r)["id"]
	view := api.views.View(GetSession(r.Context()))

	var (
		f   models.Forest
		err error
	)
	if r.URL.Query().Get("refresh") == "1" && view.CampaignID() == campaignID {
		f, err = view.Reload(r.Context())
	} else {
		f, err = view.EnsureLoaded(r.Context(), campaignID)
	}
	if err != nil {
		writeViewError(w, err)
		log.Infof("[discussionHandler][%s] campaign %s: %v", sID, campaignID, err)
		return
	}
	if f == nil {
		f = models.Forest{}
	}

	resp := DiscussionResponse{CampaignID: campaignID, Questions: f, Notice: view.Notice()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("[discussionHandler][%s] failed to encode response data: %v", sID, err)
		return
	}
	log.Debugf("[discussionHandler][%s] %d questions sent to: %v", sID, len(f), r.RemoteAddr)
}

func (api *API) submitHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(GetRequestID(r.Context()))
	campaignID := mux.Vars(r)["id"]
	view := api.views.View(GetSession(r.Context()))

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		log.Debugf("[submitHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	defer r.Body.Close()

	var (
		res discussion.SubmitResult
		err error
	)
	if req.Content == nil {
		res, err = view.SubmitDraft(r.Context(), campaignID, req.ParentID)
	} else {
		res, err = view.Submit(r.Context(), campaignID, *req.Content, req.ParentID)
	}
	if err != nil {
		writeViewError(w, err)
		log.Infof("[submitHandler][%s] campaign %s: %v", sID, campaignID, err)
		return
	}
	if res.Skipped {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	f, err := view.Forest(r.Context(), campaignID)
	if err != nil || f == nil {
		f = models.Forest{}
	}

	resp := SubmitResponse{Comment: res.Comment, Local: res.Local, Notice: view.Notice(), Questions: f}
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("[submitHandler][%s] failed to encode response data: %v", sID, err)
		return
	}
	log.Debugf("[submitHandler][%s] comment %s added to campaign %s (local: %v)", sID, res.Comment.ID, campaignID, res.Local)
}

func (api *API) draftHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(GetRequestID(r.Context()))
	campaignID := mux.Vars(r)["id"]
	view := api.views.View(GetSession(r.Context()))

	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		log.Debugf("[draftHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	defer r.Body.Close()

	if err := view.SetDraft(campaignID, req.ParentID, req.Text); err != nil {
		writeViewError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *API) dismissNoticeHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["id"]
	view := api.views.View(GetSession(r.Context()))

	if view.CampaignID() != campaignID {
		writeViewError(w, discussion.ErrNotMounted)
		return
	}
	view.DismissNotice()

	w.WriteHeader(http.StatusNoContent)
}

func (api *API) unmountHandler(w http.ResponseWriter, r *http.Request) {
	api.views.Unmount(GetSession(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func writeViewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, discussion.ErrContentTooLong):
		http.Error(w, "Question is too long", http.StatusBadRequest)
	case errors.Is(err, discussion.ErrParentNotFound):
		http.Error(w, "Question not found", http.StatusNotFound)
	case errors.Is(err, discussion.ErrSuperseded), errors.Is(err, discussion.ErrNotMounted):
		http.Error(w, "Discussion not loaded", http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Gateway Timeout", http.StatusGatewayTimeout)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
