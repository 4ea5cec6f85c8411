package store

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/yamdb/apiserver/types"
)

// CommentRepository handles persistence for comments, scoped by review.
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func selectComments() sq.SelectBuilder {
	return psql.Select("c.id", "c.review_id", "c.author_id", "u.username", "c.text", "c.pub_date").
		From("comments c").
		Join("users u ON u.id = c.author_id")
}

func scanComment(row rowScanner) (types.Comment, error) {
	var comment types.Comment
	err := row.Scan(
		&comment.ID,
		&comment.ReviewID,
		&comment.AuthorID,
		&comment.Author,
		&comment.Text,
		&comment.PubDate,
	)
	return comment, err
}

func (r *CommentRepository) List(ctx context.Context, reviewID int, page types.PageRequest) ([]types.Comment, int, error) {
	const countQuery = `SELECT COUNT(1) FROM comments WHERE review_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, reviewID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := paginate(
		selectComments().Where(sq.Eq{"c.review_id": reviewID}).OrderBy("c.pub_date DESC", "c.id DESC"),
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

	comments := make([]types.Comment, 0, page.Limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (r *CommentRepository) Get(ctx context.Context, reviewID, id int) (types.Comment, error) {
	query, args, err := selectComments().Where(sq.Eq{"c.id": id, "c.review_id": reviewID}).ToSql()
	if err != nil {
		return types.Comment{}, err
	}
	comment, err := scanComment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comment{}, ErrNotFound
		}
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	const query = `
		WITH inserted AS (
			INSERT INTO comments (review_id, author_id, text, pub_date)
			VALUES ($1, $2, $3, NOW())
			RETURNING id, review_id, author_id, text, pub_date
		)
		SELECT i.id, i.review_id, i.author_id, u.username, i.text, i.pub_date
		FROM inserted i
		JOIN users u ON u.id = i.author_id`
	created, err := scanComment(r.db.QueryRowContext(ctx, query, comment.ReviewID, comment.AuthorID, comment.Text))
	if err != nil {
		return types.Comment{}, translateError(err)
	}
	return created, nil
}

func (r *CommentRepository) Update(ctx context.Context, comment types.Comment) (types.Comment, error) {
	const query = `UPDATE comments SET text = $1 WHERE id = $2 AND review_id = $3`
	result, err := r.db.ExecContext(ctx, query, comment.Text, comment.ID, comment.ReviewID)
	if err != nil {
		return types.Comment{}, err
	}
	if err := expectAffected(result); err != nil {
		return types.Comment{}, err
	}
	return r.Get(ctx, comment.ReviewID, comment.ID)
}

func (r *CommentRepository) Delete(ctx context.Context, reviewID, id int) error {
	const query = `DELETE FROM comments WHERE id = $1 AND review_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, reviewID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
