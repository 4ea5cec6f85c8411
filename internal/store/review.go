package store

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/yamdb/apiserver/types"
)

// ReviewRepository handles persistence for reviews. Every lookup is scoped
// by title so a review is only reachable under the title it belongs to.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func selectReviews() sq.SelectBuilder {
	return psql.Select("r.id", "r.title_id", "r.author_id", "u.username", "r.text", "r.score", "r.pub_date").
		From("reviews r").
		Join("users u ON u.id = r.author_id")
}

func scanReview(row rowScanner) (types.Review, error) {
	var review types.Review
	err := row.Scan(
		&review.ID,
		&review.TitleID,
		&review.AuthorID,
		&review.Author,
		&review.Text,
		&review.Score,
		&review.PubDate,
	)
	return review, err
}

// List returns the title's reviews, newest first.
func (r *ReviewRepository) List(ctx context.Context, titleID int, page types.PageRequest) ([]types.Review, int, error) {
	const countQuery = `SELECT COUNT(1) FROM reviews WHERE title_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, titleID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := paginate(
		selectReviews().Where(sq.Eq{"r.title_id": titleID}).OrderBy("r.pub_date DESC", "r.id DESC"),
		page.Offset, page.Limit,
	).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reviews := make([]types.Review, 0, page.Limit)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (r *ReviewRepository) Get(ctx context.Context, titleID, id int) (types.Review, error) {
	query, args, err := selectReviews().Where(sq.Eq{"r.id": id, "r.title_id": titleID}).ToSql()
	if err != nil {
		return types.Review{}, err
	}
	review, err := scanReview(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Review{}, ErrNotFound
		}
		return types.Review{}, err
	}
	return review, nil
}

// ExistsForAuthor reports whether authorID already reviewed titleID.
func (r *ReviewRepository) ExistsForAuthor(ctx context.Context, titleID, authorID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reviews WHERE title_id = $1 AND author_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, titleID, authorID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a review. A second review for the same (title, author)
// pair fails with ErrConflict via the unique_review constraint.
func (r *ReviewRepository) Create(ctx context.Context, review types.Review) (types.Review, error) {
	const query = `
		WITH inserted AS (
			INSERT INTO reviews (title_id, author_id, text, score, pub_date)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, title_id, author_id, text, score, pub_date
		)
		SELECT i.id, i.title_id, i.author_id, u.username, i.text, i.score, i.pub_date
		FROM inserted i
		JOIN users u ON u.id = i.author_id`
	created, err := scanReview(r.db.QueryRowContext(ctx, query, review.TitleID, review.AuthorID, review.Text, review.Score))
	if err != nil {
		return types.Review{}, translateError(err)
	}
	return created, nil
}

// Update rewrites text and score. Author, title and pub_date are immutable.
func (r *ReviewRepository) Update(ctx context.Context, review types.Review) (types.Review, error) {
	const query = `
		UPDATE reviews
		SET text = $1,
			score = $2
		WHERE id = $3 AND title_id = $4`
	result, err := r.db.ExecContext(ctx, query, review.Text, review.Score, review.ID, review.TitleID)
	if err != nil {
		return types.Review{}, err
	}
	if err := expectAffected(result); err != nil {
		return types.Review{}, err
	}
	return r.Get(ctx, review.TitleID, review.ID)
}

// Delete removes a review together with its comments.
func (r *ReviewRepository) Delete(ctx context.Context, titleID, id int) error {
	const query = `DELETE FROM reviews WHERE id = $1 AND title_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, titleID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
