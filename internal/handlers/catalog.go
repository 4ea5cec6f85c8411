package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
)

// CatalogHandler provides HTTP handlers for categories and genres.
type CatalogHandler struct {
	catalogService *services.CatalogService
}

func NewCatalogHandler(catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// CategoryRouter registers category routes on the given router.
func CategoryRouter(r chi.Router, catalogService *services.CatalogService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCatalogHandler(catalogService)

	r.Get("/", handler.ListCategories)
	protect(r, authMiddleware).Post("/", handler.CreateCategory)
	protect(r, authMiddleware).Delete("/{slug}", handler.DeleteCategory)
}

// GenreRouter registers genre routes on the given router.
func GenreRouter(r chi.Router, catalogService *services.CatalogService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCatalogHandler(catalogService)

	r.Get("/", handler.ListGenres)
	protect(r, authMiddleware).Post("/", handler.CreateGenre)
	protect(r, authMiddleware).Delete("/{slug}", handler.DeleteGenre)
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	req, page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.catalogService.ListCategories(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(r, items, total, page, req.Limit))
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req services.TaxonInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.catalogService.CreateCategory(r.Context(), userFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	err := h.catalogService.DeleteCategory(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) ListGenres(w http.ResponseWriter, r *http.Request) {
	req, page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.catalogService.ListGenres(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(r, items, total, page, req.Limit))
}

func (h *CatalogHandler) CreateGenre(w http.ResponseWriter, r *http.Request) {
	var req services.TaxonInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.catalogService.CreateGenre(r.Context(), userFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) DeleteGenre(w http.ResponseWriter, r *http.Request) {
	err := h.catalogService.DeleteGenre(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
