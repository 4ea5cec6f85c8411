package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/yamdb/apiserver/types"
)

// TitleRepository handles persistence for titles and their genre links.
// Ratings are aggregated from reviews on every read and never stored.
type TitleRepository struct {
	db *sql.DB
}

func NewTitleRepository(db *sql.DB) *TitleRepository {
	return &TitleRepository{db: db}
}

func selectTitles() sq.SelectBuilder {
	return psql.Select(
		"t.id", "t.name", "t.year", "t.description", "t.created_at", "t.updated_at",
		"c.id", "c.name", "c.slug", "AVG(r.score)",
	).
		From("titles t").
		LeftJoin("categories c ON c.id = t.category_id").
		LeftJoin("reviews r ON r.title_id = t.id").
		GroupBy("t.id", "c.id")
}

func applyTitleFilter(b sq.SelectBuilder, filter types.TitleFilter) sq.SelectBuilder {
	if filter.Name != "" {
		b = b.Where(sq.Like{"t.name": containsPattern(filter.Name)})
	}
	if filter.Category != "" {
		b = b.Where(sq.Eq{"c.slug": filter.Category})
	}
	if filter.Genre != "" {
		b = b.Where(sq.Expr(
			`EXISTS (SELECT 1 FROM title_genres tg JOIN genres g ON g.id = tg.genre_id
			WHERE tg.title_id = t.id AND g.slug = ?)`,
			filter.Genre,
		))
	}
	if filter.Year != nil {
		b = b.Where(sq.Eq{"t.year": *filter.Year})
	}
	return b
}

func scanTitle(row rowScanner) (types.Title, error) {
	var title types.Title
	var categoryID sql.NullInt64
	var categoryName, categorySlug sql.NullString
	var rating sql.NullFloat64
	if err := row.Scan(
		&title.ID,
		&title.Name,
		&title.Year,
		&title.Description,
		&title.CreatedAt,
		&title.UpdatedAt,
		&categoryID,
		&categoryName,
		&categorySlug,
		&rating,
	); err != nil {
		return types.Title{}, err
	}
	if categoryID.Valid {
		title.Category = &types.Category{
			ID:   int(categoryID.Int64),
			Name: categoryName.String,
			Slug: categorySlug.String,
		}
	}
	if rating.Valid {
		value := rating.Float64
		title.Rating = &value
	}
	title.Genres = []types.Genre{}
	return title, nil
}

// List returns titles matching filter, newest release year first.
func (r *TitleRepository) List(ctx context.Context, filter types.TitleFilter, page types.PageRequest) ([]types.Title, int, error) {
	count := applyTitleFilter(
		psql.Select("COUNT(1)").From("titles t").LeftJoin("categories c ON c.id = t.category_id"),
		filter,
	)
	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	list := paginate(applyTitleFilter(selectTitles(), filter).OrderBy("t.year DESC", "t.id"), page.Offset, page.Limit)
	listQuery, args, err := list.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	titles := make([]types.Title, 0, page.Limit)
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, 0, err
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachGenres(ctx, titles); err != nil {
		return nil, 0, err
	}
	return titles, total, nil
}

func (r *TitleRepository) Get(ctx context.Context, id int) (types.Title, error) {
	query, args, err := selectTitles().Where(sq.Eq{"t.id": id}).ToSql()
	if err != nil {
		return types.Title{}, err
	}
	title, err := scanTitle(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Title{}, ErrNotFound
		}
		return types.Title{}, err
	}

	titles := []types.Title{title}
	if err := r.attachGenres(ctx, titles); err != nil {
		return types.Title{}, err
	}
	return titles[0], nil
}

// Exists reports whether a title with id is present.
func (r *TitleRepository) Exists(ctx context.Context, id int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM titles WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts the title and links the genres in title.Genres by ID.
func (r *TitleRepository) Create(ctx context.Context, title types.Title) (types.Title, error) {
	now := time.Now()
	var id int
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO titles (name, year, description, category_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			query,
			title.Name,
			title.Year,
			title.Description,
			categoryIDOf(title),
			now,
			now,
		).Scan(&id); err != nil {
			return err
		}
		return linkGenres(ctx, tx, id, title.Genres)
	})
	if err != nil {
		return types.Title{}, translateError(err)
	}
	return r.Get(ctx, id)
}

// Update rewrites the title row and replaces its genre links.
func (r *TitleRepository) Update(ctx context.Context, title types.Title) (types.Title, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE titles
			SET name = $1,
				year = $2,
				description = $3,
				category_id = $4,
				updated_at = $5
			WHERE id = $6`
		result, err := tx.ExecContext(
			ctx,
			query,
			title.Name,
			title.Year,
			title.Description,
			categoryIDOf(title),
			time.Now(),
			title.ID,
		)
		if err != nil {
			return err
		}
		if err := expectAffected(result); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM title_genres WHERE title_id = $1`, title.ID); err != nil {
			return err
		}
		return linkGenres(ctx, tx, title.ID, title.Genres)
	})
	if err != nil {
		return types.Title{}, translateError(err)
	}
	return r.Get(ctx, title.ID)
}

// Delete removes a title; its reviews and their comments go with it.
func (r *TitleRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM titles WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *TitleRepository) attachGenres(ctx context.Context, titles []types.Title) error {
	if len(titles) == 0 {
		return nil
	}
	ids := make([]int64, len(titles))
	index := make(map[int]int, len(titles))
	for i, title := range titles {
		ids[i] = int64(title.ID)
		index[title.ID] = i
	}

	const query = `
		SELECT tg.title_id, g.id, g.name, g.slug
		FROM title_genres tg
		JOIN genres g ON g.id = tg.genre_id
		WHERE tg.title_id = ANY($1)
		ORDER BY g.name`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var titleID int
		var genre types.Genre
		if err := rows.Scan(&titleID, &genre.ID, &genre.Name, &genre.Slug); err != nil {
			return err
		}
		if i, ok := index[titleID]; ok {
			titles[i].Genres = append(titles[i].Genres, genre)
		}
	}
	return rows.Err()
}

func (r *TitleRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit title: %w", err)
	}
	return nil
}

func linkGenres(ctx context.Context, tx *sql.Tx, titleID int, genres []types.Genre) error {
	if len(genres) == 0 {
		return nil
	}
	insert := psql.Insert("title_genres").Columns("title_id", "genre_id").Suffix("ON CONFLICT DO NOTHING")
	for _, genre := range genres {
		insert = insert.Values(titleID, genre.ID)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func categoryIDOf(title types.Title) sql.NullInt64 {
	if title.Category == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(title.Category.ID), Valid: true}
}
