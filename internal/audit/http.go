// Copyright (c) 2026 Venlock. All rights reserved.

package audit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/venlock/venlock/internal/platform/request"
	"github.com/venlock/venlock/internal/platform/respond"
	"github.com/venlock/venlock/internal/platform/validate"
)

// Handler exposes the admin read surface of the audit trail.
type Handler struct {
	repository Repository
}

// NewHandler constructs a new [Handler].
func NewHandler(repository Repository) *Handler {
	return &Handler{repository: repository}
}

// Routes returns the audit endpoint tree. The caller wraps it in the
// admin-role middleware. Stats is exported separately so the server can also
// mount it at the top-level /stats path.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.list)
	router.Get("/stats", handler.Stats)
	return router
}

/*
List returns a filtered page of audit entries, newest first.

GET /api/v1/audit?actor_id=&action=&since=&until=&limit=&offset=

Response:
  - 200: []Entry
  - 400: ErrValidation: Malformed time bounds
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()

	filter := Filter{
		ActorID: query.Get("actor_id"),
		Action:  query.Get("action"),
		Limit:   requestutil.QueryInt(request, "limit", 100),
		Offset:  requestutil.QueryInt(request, "offset", 0),
	}

	var err error
	if filter.Since, err = parseTimeParam(query.Get("since")); err != nil {
		respond.Error(writer, request, validate.RequiredError("since", "Must be an RFC 3339 timestamp"))
		return
	}
	if filter.Until, err = parseTimeParam(query.Get("until")); err != nil {
		respond.Error(writer, request, validate.RequiredError("until", "Must be an RFC 3339 timestamp"))
		return
	}

	entries, err := handler.repository.List(request.Context(), filter)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entries)
}

/*
Stats aggregates entry counts per action over a trailing window.

GET /api/v1/stats?days=

Response:
  - 200: Stats (defaults to the last 30 days)
*/
func (handler *Handler) Stats(writer http.ResponseWriter, request *http.Request) {
	days := requestutil.QueryInt(request, "days", 30)
	if days < 1 || days > 365 {
		days = 30
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	stats, err := handler.repository.Stats(request.Context(), since)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, stats)
}

// parseTimeParam parses an optional RFC 3339 query value.
func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
