package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// TitleRepository defines persistence operations for titles.
type TitleRepository interface {
	List(ctx context.Context, filter types.TitleFilter, page types.PageRequest) ([]types.Title, int, error)
	Get(ctx context.Context, id int) (types.Title, error)
	Exists(ctx context.Context, id int) (bool, error)
	Create(ctx context.Context, title types.Title) (types.Title, error)
	Update(ctx context.Context, title types.Title) (types.Title, error)
	Delete(ctx context.Context, id int) error
}

// TitleInput creates a title. Genres and category are referenced by slug.
type TitleInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Year        *int     `json:"year" validate:"required,min=0"`
	Description string   `json:"description"`
	Genre       []string `json:"genre" validate:"dive,required"`
	Category    string   `json:"category"`
}

// TitlePatch updates a title partially. An empty category slug clears the
// category; a non-nil Genre (including an empty JSON array) replaces every
// genre link.
type TitlePatch struct {
	Name        *string  `json:"name" validate:"omitnil,min=1,max=200"`
	Year        *int     `json:"year" validate:"omitnil,min=0"`
	Description *string  `json:"description"`
	Genre       []string `json:"genre" validate:"dive,required"`
	Category    *string  `json:"category"`
}

// TitleService manages titles and resolves their catalog references.
type TitleService struct {
	titles     TitleRepository
	categories CategoryRepository
	genres     GenreRepository
	now        func() time.Time
}

func NewTitleService(titles TitleRepository, categories CategoryRepository, genres GenreRepository) *TitleService {
	return &TitleService{
		titles:     titles,
		categories: categories,
		genres:     genres,
		now:        time.Now,
	}
}

func (s *TitleService) List(ctx context.Context, filter types.TitleFilter, page types.PageRequest) ([]types.Title, int, error) {
	return s.titles.List(ctx, filter, page)
}

func (s *TitleService) Get(ctx context.Context, id int) (types.Title, error) {
	return s.titles.Get(ctx, id)
}

func (s *TitleService) Create(ctx context.Context, actor *types.User, input TitleInput) (types.Title, error) {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return types.Title{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)

	verr := s.checkYear(input.Year)
	if err := mergeValidation(validateInput(input), verr); err != nil {
		return types.Title{}, err
	}

	title := types.Title{
		Name:        input.Name,
		Year:        *input.Year,
		Description: input.Description,
	}
	if err := s.resolveRefs(ctx, &title, input.Genre, &input.Category); err != nil {
		return types.Title{}, err
	}
	return s.titles.Create(ctx, title)
}

func (s *TitleService) Update(ctx context.Context, actor *types.User, id int, patch TitlePatch) (types.Title, error) {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return types.Title{}, err
	}
	trimPtr(patch.Name)
	trimPtr(patch.Category)

	verr := s.checkYear(patch.Year)
	if err := mergeValidation(validateInput(patch), verr); err != nil {
		return types.Title{}, err
	}

	title, err := s.titles.Get(ctx, id)
	if err != nil {
		return types.Title{}, err
	}
	if patch.Name != nil {
		title.Name = *patch.Name
	}
	if patch.Year != nil {
		title.Year = *patch.Year
	}
	if patch.Description != nil {
		title.Description = *patch.Description
	}

	if patch.Genre != nil || patch.Category != nil {
		current := title
		if err := s.resolveRefs(ctx, &title, patch.Genre, patch.Category); err != nil {
			return types.Title{}, err
		}
		if patch.Genre == nil {
			title.Genres = current.Genres
		}
		if patch.Category == nil {
			title.Category = current.Category
		}
	}
	return s.titles.Update(ctx, title)
}

func (s *TitleService) Delete(ctx context.Context, actor *types.User, id int) error {
	if err := authorize(actor, CanManageCatalog(actor)); err != nil {
		return err
	}
	return s.titles.Delete(ctx, id)
}

// checkYear rejects release years after the current one.
func (s *TitleService) checkYear(year *int) *ValidationError {
	if year == nil {
		return nil
	}
	if current := s.now().Year(); *year > current {
		return fieldError("year", fmt.Sprintf("Ensure this value is less than or equal to %d.", current))
	}
	return nil
}

// resolveRefs replaces title's genres with genreSlugs and, when category is
// non-nil, its category with the one named by *category ("" clears it).
func (s *TitleService) resolveRefs(ctx context.Context, title *types.Title, genreSlugs []string, category *string) error {
	verr := &ValidationError{}

	title.Genres = make([]types.Genre, 0, len(genreSlugs))
	for _, slug := range genreSlugs {
		genre, err := s.genres.GetBySlug(ctx, strings.TrimSpace(slug))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				verr.Add("genre", fmt.Sprintf("Object with slug=%s does not exist.", slug))
				continue
			}
			return err
		}
		title.Genres = append(title.Genres, genre)
	}

	if category != nil {
		title.Category = nil
		if *category != "" {
			found, err := s.categories.GetBySlug(ctx, *category)
			switch {
			case err == nil:
				title.Category = &found
			case errors.Is(err, store.ErrNotFound):
				verr.Add("category", fmt.Sprintf("Object with slug=%s does not exist.", *category))
			default:
				return err
			}
		}
	}
	return verr.orNil()
}
