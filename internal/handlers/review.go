package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
)

// ReviewHandler provides HTTP handlers for the reviews of a title.
type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// ReviewRouter registers review routes. It expects a titleID URL parameter
// from the enclosing route.
func ReviewRouter(
	r chi.Router,
	reviewService *services.ReviewService,
	commentService *services.CommentService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewReviewHandler(reviewService)

	r.Get("/", handler.ListReviews)
	protect(r, authMiddleware).Post("/", handler.CreateReview)
	r.Route("/{reviewID}", func(r chi.Router) {
		r.Get("/", handler.GetReview)
		protect(r, authMiddleware).Patch("/", handler.UpdateReview)
		protect(r, authMiddleware).Delete("/", handler.DeleteReview)
		r.Route("/comments", func(r chi.Router) {
			CommentRouter(r, commentService, authMiddleware)
		})
	})
}

func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	titleID, err := parseIDParam(r, "titleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.reviewService.List(r.Context(), titleID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(r, items, total, page, req.Limit))
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviewService.Get(r.Context(), titleID, reviewID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	titleID, err := parseIDParam(r, "titleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.ReviewInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.reviewService.Create(r.Context(), userFromContext(r.Context()), titleID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.ReviewPatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.reviewService.Update(r.Context(), userFromContext(r.Context()), titleID, reviewID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reviewService.Delete(r.Context(), userFromContext(r.Context()), titleID, reviewID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func reviewPath(r *http.Request) (titleID, reviewID int, err error) {
	if titleID, err = parseIDParam(r, "titleID"); err != nil {
		return 0, 0, err
	}
	if reviewID, err = parseIDParam(r, "reviewID"); err != nil {
		return 0, 0, err
	}
	return titleID, reviewID, nil
}
