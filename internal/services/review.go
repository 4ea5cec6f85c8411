package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

const duplicateReviewMessage = "You have already reviewed this title."

// ReviewRepository defines persistence operations for reviews. Every call is
// scoped to a title.
type ReviewRepository interface {
	List(ctx context.Context, titleID int, page types.PageRequest) ([]types.Review, int, error)
	Get(ctx context.Context, titleID, id int) (types.Review, error)
	ExistsForAuthor(ctx context.Context, titleID, authorID int) (bool, error)
	Create(ctx context.Context, review types.Review) (types.Review, error)
	Update(ctx context.Context, review types.Review) (types.Review, error)
	Delete(ctx context.Context, titleID, id int) error
}

// ReviewInput creates a review.
type ReviewInput struct {
	Text  string `json:"text" validate:"required,max=1000"`
	Score int    `json:"score" validate:"required,min=1,max=10"`
}

// ReviewPatch updates a review partially.
type ReviewPatch struct {
	Text  *string `json:"text" validate:"omitnil,min=1,max=1000"`
	Score *int    `json:"score" validate:"omitnil,min=1,max=10"`
}

// ReviewService manages reviews of a title.
type ReviewService struct {
	reviews ReviewRepository
	titles  TitleRepository
}

func NewReviewService(reviews ReviewRepository, titles TitleRepository) *ReviewService {
	return &ReviewService{reviews: reviews, titles: titles}
}

func (s *ReviewService) requireTitle(ctx context.Context, titleID int) error {
	exists, err := s.titles.Exists(ctx, titleID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (s *ReviewService) List(ctx context.Context, titleID int, page types.PageRequest) ([]types.Review, int, error) {
	if err := s.requireTitle(ctx, titleID); err != nil {
		return nil, 0, err
	}
	return s.reviews.List(ctx, titleID, page)
}

func (s *ReviewService) Get(ctx context.Context, titleID, id int) (types.Review, error) {
	return s.reviews.Get(ctx, titleID, id)
}

// Create adds the caller's review. A second review of the same title by the
// same author is rejected with a validation error, both by the pre-check and
// when the unique constraint catches a concurrent insert.
func (s *ReviewService) Create(ctx context.Context, actor *types.User, titleID int, input ReviewInput) (types.Review, error) {
	if actor == nil {
		return types.Review{}, ErrAuthentication
	}
	if err := s.requireTitle(ctx, titleID); err != nil {
		return types.Review{}, err
	}
	input.Text = strings.TrimSpace(input.Text)
	if err := validateInput(input); err != nil {
		return types.Review{}, err
	}

	exists, err := s.reviews.ExistsForAuthor(ctx, titleID, actor.ID)
	if err != nil {
		return types.Review{}, err
	}
	if exists {
		return types.Review{}, nonFieldError(duplicateReviewMessage)
	}

	review, err := s.reviews.Create(ctx, types.Review{
		TitleID:  titleID,
		AuthorID: actor.ID,
		Text:     input.Text,
		Score:    input.Score,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Review{}, nonFieldError(duplicateReviewMessage)
		}
		return types.Review{}, err
	}
	return review, nil
}

func (s *ReviewService) Update(ctx context.Context, actor *types.User, titleID, id int, patch ReviewPatch) (types.Review, error) {
	if actor == nil {
		return types.Review{}, ErrAuthentication
	}
	review, err := s.reviews.Get(ctx, titleID, id)
	if err != nil {
		return types.Review{}, err
	}
	if !CanModifyContent(actor, review.AuthorID) {
		return types.Review{}, ErrForbidden
	}

	trimPtr(patch.Text)
	if err := validateInput(patch); err != nil {
		return types.Review{}, err
	}
	if patch.Text != nil {
		review.Text = *patch.Text
	}
	if patch.Score != nil {
		review.Score = *patch.Score
	}
	return s.reviews.Update(ctx, review)
}

func (s *ReviewService) Delete(ctx context.Context, actor *types.User, titleID, id int) error {
	if actor == nil {
		return ErrAuthentication
	}
	review, err := s.reviews.Get(ctx, titleID, id)
	if err != nil {
		return err
	}
	if !CanModifyContent(actor, review.AuthorID) {
		return ErrForbidden
	}
	return s.reviews.Delete(ctx, titleID, id)
}
