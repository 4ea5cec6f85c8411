package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
)

// CommentHandler provides HTTP handlers for the comments of a review.
type CommentHandler struct {
	commentService *services.CommentService
}

func NewCommentHandler(commentService *services.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

// CommentRouter registers comment routes below a titleID/reviewID route.
func CommentRouter(r chi.Router, commentService *services.CommentService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCommentHandler(commentService)

	r.Get("/", handler.ListComments)
	protect(r, authMiddleware).Post("/", handler.CreateComment)
	r.Route("/{commentID}", func(r chi.Router) {
		r.Get("/", handler.GetComment)
		protect(r, authMiddleware).Patch("/", handler.UpdateComment)
		protect(r, authMiddleware).Delete("/", handler.DeleteComment)
	})
}

func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.commentService.List(r.Context(), titleID, reviewID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(r, items, total, page, req.Limit))
}

func (h *CommentHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, commentID, err := commentPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.commentService.Get(r.Context(), titleID, reviewID, commentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, comment)
}

func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.CommentInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.commentService.Create(r.Context(), userFromContext(r.Context()), titleID, reviewID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CommentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, commentID, err := commentPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.CommentInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.commentService.Update(r.Context(), userFromContext(r.Context()), titleID, reviewID, commentID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, commentID, err := commentPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.commentService.Delete(r.Context(), userFromContext(r.Context()), titleID, reviewID, commentID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func commentPath(r *http.Request) (titleID, reviewID, commentID int, err error) {
	if titleID, reviewID, err = reviewPath(r); err != nil {
		return 0, 0, 0, err
	}
	if commentID, err = parseIDParam(r, "commentID"); err != nil {
		return 0, 0, 0, err
	}
	return titleID, reviewID, commentID, nil
}
