// Package discussion keeps the question and answer forest of the campaign a user is looking at.
package discussion

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"qanda/pkg/events"
	"qanda/pkg/forest"
	"qanda/pkg/models"
)

const (
	// LocalIDPrefix marks placeholder IDs so they never collide with backend IDs.
	LocalIDPrefix = "local-"

	SubmitFailedNotice = "Your question could not be sent. It is shown only to you for now."
)

var (
	ErrContentTooLong = errors.New("question is too long")
	ErrParentNotFound = errors.New("parent question not found")
	ErrSuperseded     = errors.New("discussion changed while the request was in flight")
	ErrNotMounted     = errors.New("no discussion mounted")

	errLocalParent = errors.New("parent exists only locally")
)

// Backend is the authenticated request service the view reads and writes through.
type Backend interface {
	Comments(ctx context.Context, campaignID string) ([]*models.Comment, error)
	CreateComment(ctx context.Context, campaignID string, comment models.NewComment) (*models.Comment, error)
}

type load struct {
	campaignID string
	done       chan struct{}
}

// SubmitResult describes what a submission put into the forest.
type SubmitResult struct {
	Comment models.Comment
	// Local is set when the backend write failed and Comment is a placeholder.
	Local bool
	// Skipped is set when there was nothing to send.
	Skipped bool
	Err     error
}

// View is one mounted discussion. It is safe for concurrent use; the lock is never held
// across backend calls.
type View struct {
	backend Backend
	events  events.Publisher
	now     func() time.Time

	mu         sync.Mutex
	campaignID string
	load       *load
	questions  []*models.Question
	owner      map[string]*models.Question
	drafts     map[string]string
	notice     string
	lastUsed   time.Time
}

func NewView(backend Backend, publisher events.Publisher) *View {
	if publisher == nil {
		publisher = events.Nop{}
	}

	v := View{
		backend: backend,
		events:  publisher,
		now:     time.Now,
	}
	v.reset("")
	v.lastUsed = v.now()

	return &v
}

// reset must be called with mu held.
func (v *View) reset(campaignID string) {
	v.campaignID = campaignID
	v.load = nil
	v.questions = nil
	v.owner = make(map[string]*models.Question)
	v.drafts = make(map[string]string)
	v.notice = ""
}

// EnsureLoaded mounts campaignID and returns its forest. The backend is read once per mount:
// concurrent and later calls for the same campaign share that read. Switching to another
// campaign drops the current forest and starts a new read; results of older reads are
// discarded when they arrive.
//
// A failed read is logged and yields an empty discussion. ErrSuperseded is returned if the
// view moved to another campaign while the caller was waiting.
func (v *View) EnsureLoaded(ctx context.Context, campaignID string) (models.Forest, error) {
	if campaignID == "" {
		return nil, ErrNotMounted
	}

	v.mu.Lock()
	v.lastUsed = v.now()
	if campaignID != v.campaignID {
		if v.campaignID != "" {
			log.Debugf("[discussion] switching from campaign %s to %s", v.campaignID, campaignID)
		}
		v.reset(campaignID)
	}
	if v.load == nil {
		v.load = v.startLoad(ctx, campaignID)
	}
	l := v.load
	v.mu.Unlock()

	return v.wait(ctx, l)
}

// Reload reads the mounted campaign again, keeping the current forest until the new one arrives.
func (v *View) Reload(ctx context.Context) (models.Forest, error) {
	v.mu.Lock()
	if v.campaignID == "" {
		v.mu.Unlock()
		return nil, ErrNotMounted
	}
	v.lastUsed = v.now()
	v.load = v.startLoad(ctx, v.campaignID)
	l := v.load
	v.mu.Unlock()

	return v.wait(ctx, l)
}

// startLoad must be called with mu held.
func (v *View) startLoad(ctx context.Context, campaignID string) *load {
	l := &load{campaignID: campaignID, done: make(chan struct{})}

	// The read outlives a caller that stops waiting, other callers share it.
	go v.fetch(context.WithoutCancel(ctx), l)

	return l
}

func (v *View) fetch(ctx context.Context, l *load) {
	defer close(l.done)

	comments, err := v.backend.Comments(ctx, l.campaignID)
	if err != nil {
		log.Errorf("[discussion] failed to load campaign %s, showing empty discussion: %v", l.campaignID, err)
		e := events.New(events.TypeLoadFailed, l.campaignID)
		e.Error = err.Error()
		v.publish(ctx, e)
		comments = nil
	}

	roots, dropped := forest.Build(comments)
	for _, c := range dropped {
		log.Warnf("[discussion] campaign %s: comment %s (parent %q) not shown, duplicate id or parent cycle", l.campaignID, c.ID, c.ParentID)
	}

	v.mu.Lock()
	if v.load != l {
		v.mu.Unlock()
		log.Debugf("[discussion] discarding stale load of campaign %s", l.campaignID)
		return
	}
	v.questions = roots
	v.owner = make(map[string]*models.Question, len(comments))
	for _, q := range roots {
		v.owner[q.ID] = q
		for _, a := range q.Answers {
			v.owner[a.ID] = q
		}
	}
	v.mu.Unlock()

	if err == nil {
		e := events.New(events.TypeLoaded, l.campaignID)
		e.Count = len(comments)
		v.publish(ctx, e)
	}
}

// wait blocks until the view's current load of l's campaign has committed. A load replaced
// while it ran (by Reload, or by leaving and coming back) is followed to its successor.
func (v *View) wait(ctx context.Context, l *load) (models.Forest, error) {
	for {
		select {
		case <-l.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		v.mu.Lock()
		if v.campaignID != l.campaignID || v.load == nil {
			v.mu.Unlock()
			return nil, ErrSuperseded
		}
		if v.load != l {
			l = v.load
			v.mu.Unlock()
			continue
		}
		f := forest.Snapshot(v.questions)
		v.mu.Unlock()

		return f, nil
	}
}

// Forest returns the forest of campaignID once its load has committed. Unlike EnsureLoaded
// it never mounts: ErrNotMounted is returned when the view shows another campaign.
func (v *View) Forest(ctx context.Context, campaignID string) (models.Forest, error) {
	v.mu.Lock()
	if campaignID == "" || v.campaignID != campaignID || v.load == nil {
		v.mu.Unlock()
		return nil, ErrNotMounted
	}
	v.lastUsed = v.now()
	l := v.load
	v.mu.Unlock()

	return v.wait(ctx, l)
}

// Submit posts text as a new question, or as an answer when parentID is set, and adds the
// stored comment to the forest. When the backend write fails a local placeholder is added
// instead; for questions the view also raises a notice. The draft of the submitted box is
// cleared either way.
//
// Blank text is a no-op. Questions over models.MaxQuestionLength characters are rejected
// with ErrContentTooLong, answers to unknown comments with ErrParentNotFound; neither calls
// the backend. Submitting to a campaign the view does not show fails with ErrNotMounted.
// Answers to a placeholder question stay local, since the backend has never seen their parent.
func (v *View) Submit(ctx context.Context, campaignID, text, parentID string) (SubmitResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SubmitResult{Skipped: true}, nil
	}
	if parentID == "" && utf8.RuneCountInString(text) > models.MaxQuestionLength {
		return SubmitResult{}, ErrContentTooLong
	}

	if _, err := v.Forest(ctx, campaignID); err != nil {
		return SubmitResult{}, err
	}

	localParent := false
	if parentID != "" {
		v.mu.Lock()
		q, ok := v.owner[parentID]
		if ok {
			localParent = isLocal(q, parentID)
		}
		v.mu.Unlock()

		if !ok {
			return SubmitResult{}, ErrParentNotFound
		}
	}

	var res SubmitResult
	if localParent {
		res.Local = true
		res.Err = errLocalParent
	} else {
		created, err := v.backend.CreateComment(ctx, campaignID, models.NewComment{Content: text, ParentID: parentID})
		if err != nil {
			log.Warnf("[discussion] failed to submit to campaign %s, keeping local copy: %v", campaignID, err)
			res.Local = true
			res.Err = err
		} else {
			res.Comment = *created
			if res.Comment.ParentID == "" {
				res.Comment.ParentID = parentID
			}
		}
	}
	if res.Local {
		res.Comment = v.placeholder(text, parentID)
	}

	if err := v.insert(campaignID, parentID, res); err != nil {
		return SubmitResult{}, err
	}

	e := events.New(events.TypeSubmitted, campaignID)
	if res.Local {
		e.Type = events.TypePlaceholder
		e.Error = res.Err.Error()
	}
	e.CommentID = res.Comment.ID
	e.ParentID = parentID
	v.publish(ctx, e)

	return res, nil
}

func (v *View) insert(campaignID, parentID string, res SubmitResult) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.campaignID != campaignID {
		log.Debugf("[discussion] dropping submission to campaign %s, view moved to %q", campaignID, v.campaignID)
		return ErrSuperseded
	}

	c := res.Comment
	// A reload finished first and already shows this comment.
	_, shown := v.owner[c.ID]

	var q *models.Question
	if parentID != "" && !shown {
		var ok bool
		if q, ok = v.owner[parentID]; !ok {
			log.Warnf("[discussion] campaign %s: question %s disappeared before comment %s could be shown", campaignID, parentID, c.ID)
			return ErrParentNotFound
		}
	}

	v.lastUsed = v.now()
	delete(v.drafts, parentID)
	if res.Local && parentID == "" {
		v.notice = SubmitFailedNotice
	}
	if shown {
		return nil
	}

	if parentID == "" {
		q := &models.Question{Comment: c, Answers: []models.Comment{}}
		v.questions = append(v.questions, q)
		v.owner[c.ID] = q
		return nil
	}

	q.Answers = append(q.Answers, c)
	v.owner[c.ID] = q

	return nil
}

// SubmitDraft submits the stored draft of the question box (empty parentID) or of the
// answer box under parentID.
func (v *View) SubmitDraft(ctx context.Context, campaignID, parentID string) (SubmitResult, error) {
	v.mu.Lock()
	text := ""
	if v.campaignID == campaignID {
		text = v.drafts[parentID]
	}
	v.mu.Unlock()

	return v.Submit(ctx, campaignID, text, parentID)
}

func isLocal(q *models.Question, id string) bool {
	if q.ID == id {
		return q.IsLocal
	}
	for _, a := range q.Answers {
		if a.ID == id {
			return a.IsLocal
		}
	}
	return false
}

func (v *View) placeholder(text, parentID string) models.Comment {
	token := strconv.FormatInt(v.now().UnixNano(), 36)
	if id, err := uuid.NewV4(); err == nil {
		token = id.String()
	}

	return models.Comment{
		ID:        LocalIDPrefix + token,
		Content:   text,
		Author:    models.LocalAuthor,
		CreatedAt: v.now().UTC(),
		ParentID:  parentID,
		IsLocal:   true,
	}
}

// SetDraft stores unsent text for the question box (empty parentID) or an answer box.
func (v *View) SetDraft(campaignID, parentID, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if campaignID == "" || v.campaignID != campaignID {
		return ErrNotMounted
	}
	v.lastUsed = v.now()
	if text == "" {
		delete(v.drafts, parentID)
		return nil
	}
	v.drafts[parentID] = text

	return nil
}

func (v *View) Draft(parentID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.drafts[parentID]
}

// Notice returns the message raised by the last failed question, if not dismissed.
func (v *View) Notice() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.notice
}

func (v *View) DismissNotice() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = ""
}

func (v *View) CampaignID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.campaignID
}

// Unmount discards the forest, drafts and load state. Reads still in flight are ignored.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reset("")
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsed
}

func (v *View) publish(ctx context.Context, e events.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := v.events.Publish(ctx, e); err != nil {
			log.Errorf("[discussion] failed to publish %s event: %v", e.Type, err)
		}
	}()
}
