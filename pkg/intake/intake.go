// Package intake applies task changes coming from the conversational front
// end, which hands them over as JSON objects, one per line.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/clock"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/store"
	"github.com/harrisonrobin/tasknudge/pkg/timefix"
	"go.uber.org/zap"
)

type Op string

const (
	UPSERT   Op = "upsert"
	DELETE   Op = "delete"
	COMPLETE Op = "complete"
)

var (
	ErrUnknownOp  = errors.New("unknown op")
	ErrNoIdentity = errors.New("delete and complete need a remote_id or title")
	ErrNoSuchTask = errors.New("no task matches")
)

// Request is one upstream change. Absent fields mean "no change".
type Request struct {
	Op            Op      `json:"op"`
	Owner         string  `json:"owner"`
	Title         *string `json:"title,omitempty"`
	Details       *string `json:"details,omitempty"`
	Due           *string `json:"due,omitempty"`
	RemoteID      string  `json:"remote_id,omitempty"`
	AssistantNote *string `json:"assistant_note,omitempty"`
}

// ParseRequest parses a single request from r.
func ParseRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("failed to decode request json: %w", err)
	}
	return req, nil
}

// ParseRequests parses a stream of JSON objects, such as one per line.
func ParseRequests(r io.Reader) ([]Request, error) {
	var reqs []Request
	decoder := json.NewDecoder(r)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode request json: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Zones resolves an owner's time zone.
type Zones interface {
	Location(owner string) (*time.Location, bool)
}

type Intake struct {
	Store      *store.Store
	Zones      Zones
	Normalizer timefix.Normalizer
	Clock      clock.Clock
	Log        *zap.SugaredLogger
}

// Result describes what Apply did.
type Result struct {
	Task    model.Task
	Created bool
}

// Apply executes one request.
func (in *Intake) Apply(req Request) (Result, error) {
	owner := model.NormalizeOwner(req.Owner)
	if owner == "" {
		return Result{}, store.ErrNoOwner
	}

	switch req.Op {
	case UPSERT, "":
		m := model.Mutation{
			Owner:         owner,
			RemoteID:      strings.TrimSpace(req.RemoteID),
			Title:         req.Title,
			Details:       req.Details,
			Due:           in.normalizeDue(owner, req.Due),
			AssistantNote: req.AssistantNote,
		}
		task, created, err := in.Store.Upsert(m)
		if err != nil {
			return Result{}, err
		}
		return Result{Task: task, Created: created}, nil

	case DELETE, COMPLETE:
		id := store.Identity{RemoteID: strings.TrimSpace(req.RemoteID)}
		if req.Title != nil {
			id.Title = *req.Title
		}
		if id.RemoteID == "" && strings.TrimSpace(id.Title) == "" {
			return Result{}, ErrNoIdentity
		}
		state := model.DELETE
		if req.Op == COMPLETE {
			state = model.PASSED
		}
		found, err := in.Store.SetStatus(owner, id, state)
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{}, fmt.Errorf("%w for %s %+v", ErrNoSuchTask, owner, id)
		}
		return Result{}, nil
	}
	return Result{}, fmt.Errorf("%w %q", ErrUnknownOp, req.Op)
}

// ApplyAll parses every request in r and applies them in order. A request
// that fails is logged and skipped. It returns how many were applied.
func (in *Intake) ApplyAll(r io.Reader) (int, error) {
	reqs, err := ParseRequests(r)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, req := range reqs {
		res, err := in.Apply(req)
		if err != nil {
			in.Log.Warnw("intake: request rejected", "op", req.Op, "owner", req.Owner, "error", err)
			continue
		}
		applied++
		if req.Op == UPSERT || req.Op == "" {
			in.Log.Infow("intake: task saved", "owner", res.Task.Owner, "title", res.Task.Title, "created", res.Created)
		} else {
			in.Log.Infow("intake: task marked", "op", req.Op, "owner", req.Owner)
		}
	}
	return applied, nil
}

// normalizeDue resolves due text in the owner's zone. Text that does not
// resolve is stored as given for reconciliation to retry.
func (in *Intake) normalizeDue(owner string, due *string) *string {
	if due == nil || strings.TrimSpace(*due) == "" {
		return due
	}
	loc, _ := in.Zones.Location(owner)
	t, ok := in.Normalizer.Normalize(*due, loc, in.Clock.Now())
	if !ok {
		return due
	}
	s := model.FormatDue(t.In(loc))
	return &s
}
