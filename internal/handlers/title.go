package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/types"
)

// TitleHandler provides HTTP handlers for titles.
type TitleHandler struct {
	titleService *services.TitleService
}

func NewTitleHandler(titleService *services.TitleService) *TitleHandler {
	return &TitleHandler{titleService: titleService}
}

// TitleRouter registers title routes, with reviews and their comments nested
// under /{titleID}/reviews.
func TitleRouter(
	r chi.Router,
	titleService *services.TitleService,
	reviewService *services.ReviewService,
	commentService *services.CommentService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewTitleHandler(titleService)

	r.Get("/", handler.ListTitles)
	protect(r, authMiddleware).Post("/", handler.CreateTitle)
	r.Route("/{titleID}", func(r chi.Router) {
		r.Get("/", handler.GetTitle)
		protect(r, authMiddleware).Patch("/", handler.UpdateTitle)
		protect(r, authMiddleware).Delete("/", handler.DeleteTitle)
		r.Route("/reviews", func(r chi.Router) {
			ReviewRouter(r, reviewService, commentService, authMiddleware)
		})
	})
}

func (h *TitleHandler) ListTitles(w http.ResponseWriter, r *http.Request) {
	req, page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseTitleFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.titleService.List(r.Context(), filter, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(r, items, total, page, req.Limit))
}

func (h *TitleHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "titleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	title, err := h.titleService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, title)
}

func (h *TitleHandler) CreateTitle(w http.ResponseWriter, r *http.Request) {
	var req services.TitleInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.titleService.Create(r.Context(), userFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TitleHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "titleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.TitlePatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.titleService.Update(r.Context(), userFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *TitleHandler) DeleteTitle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "titleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.titleService.Delete(r.Context(), userFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseTitleFilter(r *http.Request) (types.TitleFilter, error) {
	query := r.URL.Query()
	filter := types.TitleFilter{
		Name:     strings.TrimSpace(query.Get("name")),
		Category: strings.TrimSpace(query.Get("category")),
		Genre:    strings.TrimSpace(query.Get("genre")),
	}
	if raw := strings.TrimSpace(query.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 0 {
			return types.TitleFilter{}, errors.New("invalid year")
		}
		filter.Year = &year
	}
	return filter, nil
}
