package services

import (
	"context"
	"strings"

	"github.com/yamdb/apiserver/types"
)

// CommentRepository defines persistence operations for comments. Every call
// is scoped to a review.
type CommentRepository interface {
	List(ctx context.Context, reviewID int, page types.PageRequest) ([]types.Comment, int, error)
	Get(ctx context.Context, reviewID, id int) (types.Comment, error)
	Create(ctx context.Context, comment types.Comment) (types.Comment, error)
	Update(ctx context.Context, comment types.Comment) (types.Comment, error)
	Delete(ctx context.Context, reviewID, id int) error
}

// CommentInput creates or replaces the text of a comment.
type CommentInput struct {
	Text string `json:"text" validate:"required,max=1000"`
}

// CommentService manages comments on reviews. The review is always looked
// up through its title, so a comment path naming the wrong title is a 404.
type CommentService struct {
	comments CommentRepository
	reviews  ReviewRepository
}

func NewCommentService(comments CommentRepository, reviews ReviewRepository) *CommentService {
	return &CommentService{comments: comments, reviews: reviews}
}

func (s *CommentService) List(ctx context.Context, titleID, reviewID int, page types.PageRequest) ([]types.Comment, int, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return nil, 0, err
	}
	return s.comments.List(ctx, reviewID, page)
}

func (s *CommentService) Get(ctx context.Context, titleID, reviewID, id int) (types.Comment, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return types.Comment{}, err
	}
	return s.comments.Get(ctx, reviewID, id)
}

func (s *CommentService) Create(ctx context.Context, actor *types.User, titleID, reviewID int, input CommentInput) (types.Comment, error) {
	if actor == nil {
		return types.Comment{}, ErrAuthentication
	}
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return types.Comment{}, err
	}
	input.Text = strings.TrimSpace(input.Text)
	if err := validateInput(input); err != nil {
		return types.Comment{}, err
	}
	return s.comments.Create(ctx, types.Comment{
		ReviewID: reviewID,
		AuthorID: actor.ID,
		Text:     input.Text,
	})
}

func (s *CommentService) Update(ctx context.Context, actor *types.User, titleID, reviewID, id int, input CommentInput) (types.Comment, error) {
	comment, err := s.editable(ctx, actor, titleID, reviewID, id)
	if err != nil {
		return types.Comment{}, err
	}
	input.Text = strings.TrimSpace(input.Text)
	if err := validateInput(input); err != nil {
		return types.Comment{}, err
	}
	comment.Text = input.Text
	return s.comments.Update(ctx, comment)
}

func (s *CommentService) Delete(ctx context.Context, actor *types.User, titleID, reviewID, id int) error {
	if _, err := s.editable(ctx, actor, titleID, reviewID, id); err != nil {
		return err
	}
	return s.comments.Delete(ctx, reviewID, id)
}

func (s *CommentService) editable(ctx context.Context, actor *types.User, titleID, reviewID, id int) (types.Comment, error) {
	if actor == nil {
		return types.Comment{}, ErrAuthentication
	}
	comment, err := s.Get(ctx, titleID, reviewID, id)
	if err != nil {
		return types.Comment{}, err
	}
	if !CanModifyContent(actor, comment.AuthorID) {
		return types.Comment{}, ErrForbidden
	}
	return comment, nil
}
