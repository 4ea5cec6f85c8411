package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context, page types.PageRequest) ([]types.Category, int, error)
	GetBySlug(ctx context.Context, slug string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	DeleteBySlug(ctx context.Context, slug string) error
}

// GenreRepository defines persistence operations for genres.
type GenreRepository interface {
	List(ctx context.Context, page types.PageRequest) ([]types.Genre, int, error)
	GetBySlug(ctx context.Context, slug string) (types.Genre, error)
	Create(ctx context.Context, genre types.Genre) (types.Genre, error)
	DeleteBySlug(ctx context.Context, slug string) error
}

// TaxonInput is the payload for creating a category or a genre.
type TaxonInput struct {
	Name string `json:"name" validate:"required,max=120"`
	Slug string `json:"slug" validate:"required,max=50,slug"`
}

func (in *TaxonInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
}

// CatalogService manages categories and genres.
type CatalogService struct {
	categories CategoryRepository
	genres     GenreRepository
}

func NewCatalogService(categories CategoryRepository, genres GenreRepository) *CatalogService {
	return &CatalogService{categories: categories, genres: genres}
}

func (s *CatalogService) ListCategories(ctx context.Context, page types.PageRequest) ([]types.Category, int, error) {
	return s.categories.List(ctx, page)
}

func (s *CatalogService) CreateCategory(ctx context.Context, actor *types.User, input TaxonInput) (types.Category, error) {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return types.Category{}, err
	}
	input.normalize()
	if err := validateInput(input); err != nil {
		return types.Category{}, err
	}
	category, err := s.categories.Create(ctx, types.Category{Name: input.Name, Slug: input.Slug})
	if err != nil {
		return types.Category{}, slugConflict(err, "category")
	}
	return category, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, actor *types.User, slug string) error {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return err
	}
	return s.categories.DeleteBySlug(ctx, slug)
}

func (s *CatalogService) ListGenres(ctx context.Context, page types.PageRequest) ([]types.Genre, int, error) {
	return s.genres.List(ctx, page)
}

func (s *CatalogService) CreateGenre(ctx context.Context, actor *types.User, input TaxonInput) (types.Genre, error) {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return types.Genre{}, err
	}
	input.normalize()
	if err := validateInput(input); err != nil {
		return types.Genre{}, err
	}
	genre, err := s.genres.Create(ctx, types.Genre{Name: input.Name, Slug: input.Slug})
	if err != nil {
		return types.Genre{}, slugConflict(err, "genre")
	}
	return genre, nil
}

func (s *CatalogService) DeleteGenre(ctx context.Context, actor *types.User, slug string) error {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return err
	}
	return s.genres.DeleteBySlug(ctx, slug)
}

func slugConflict(err error, kind string) error {
	if errors.Is(err, store.ErrConflict) {
		return fieldError("slug", kind+" with this slug already exists.")
	}
	return err
}
