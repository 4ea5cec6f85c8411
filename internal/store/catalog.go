package store

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/yamdb/apiserver/types"
)

// taxon is the shared row shape of categories and genres.
type taxon struct {
	ID   int
	Name string
	Slug string
}

// taxonomyTable implements slug-addressed reference tables.
type taxonomyTable struct {
	db    *sql.DB
	table string
}

func (t taxonomyTable) list(ctx context.Context, page types.PageRequest) ([]taxon, int, error) {
	count := psql.Select("COUNT(1)").From(t.table)
	list := psql.Select("id", "name", "slug").From(t.table).OrderBy("name", "id")
	if page.Search != "" {
		where := sq.ILike{"name": containsPattern(page.Search)}
		count = count.Where(where)
		list = list.Where(where)
	}

	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := t.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery, args, err := paginate(list, page.Offset, page.Limit).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := t.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]taxon, 0, page.Limit)
	for rows.Next() {
		var item taxon
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (t taxonomyTable) getBySlug(ctx context.Context, slug string) (taxon, error) {
	query, args, err := psql.Select("id", "name", "slug").From(t.table).Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return taxon{}, err
	}
	var item taxon
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&item.ID, &item.Name, &item.Slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return taxon{}, ErrNotFound
		}
		return taxon{}, err
	}
	return item, nil
}

func (t taxonomyTable) create(ctx context.Context, item taxon) (taxon, error) {
	query, args, err := psql.Insert(t.table).
		Columns("name", "slug").
		Values(item.Name, item.Slug).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return taxon{}, err
	}
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&item.ID); err != nil {
		return taxon{}, translateError(err)
	}
	return item, nil
}

func (t taxonomyTable) deleteBySlug(ctx context.Context, slug string) error {
	query, args, err := psql.Delete(t.table).Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return err
	}
	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// CategoryRepository handles persistence for categories. Deleting a category
// clears it from its titles (ON DELETE SET NULL).
type CategoryRepository struct {
	table taxonomyTable
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{table: taxonomyTable{db: db, table: "categories"}}
}

func (r *CategoryRepository) List(ctx context.Context, page types.PageRequest) ([]types.Category, int, error) {
	items, total, err := r.table.list(ctx, page)
	if err != nil {
		return nil, 0, err
	}
	categories := make([]types.Category, len(items))
	for i, item := range items {
		categories[i] = types.Category(item)
	}
	return categories, total, nil
}

func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (types.Category, error) {
	item, err := r.table.getBySlug(ctx, slug)
	return types.Category(item), err
}

func (r *CategoryRepository) Create(ctx context.Context, category types.Category) (types.Category, error) {
	item, err := r.table.create(ctx, taxon(category))
	return types.Category(item), err
}

func (r *CategoryRepository) DeleteBySlug(ctx context.Context, slug string) error {
	return r.table.deleteBySlug(ctx, slug)
}

// GenreRepository handles persistence for genres. Deleting a genre detaches
// it from every title (ON DELETE CASCADE on title_genres).
type GenreRepository struct {
	table taxonomyTable
}

func NewGenreRepository(db *sql.DB) *GenreRepository {
	return &GenreRepository{table: taxonomyTable{db: db, table: "genres"}}
}

func (r *GenreRepository) List(ctx context.Context, page types.PageRequest) ([]types.Genre, int, error) {
	items, total, err := r.table.list(ctx, page)
	if err != nil {
		return nil, 0, err
	}
	genres := make([]types.Genre, len(items))
	for i, item := range items {
		genres[i] = types.Genre(item)
	}
	return genres, total, nil
}

func (r *GenreRepository) GetBySlug(ctx context.Context, slug string) (types.Genre, error) {
	item, err := r.table.getBySlug(ctx, slug)
	return types.Genre(item), err
}

func (r *GenreRepository) Create(ctx context.Context, genre types.Genre) (types.Genre, error) {
	item, err := r.table.create(ctx, taxon(genre))
	return types.Genre(item), err
}

func (r *GenreRepository) DeleteBySlug(ctx context.Context, slug string) error {
	return r.table.deleteBySlug(ctx, slug)
}
