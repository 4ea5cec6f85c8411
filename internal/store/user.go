package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/yamdb/apiserver/types"
)

var userColumns = []string{
	"id", "username", "email", "first_name", "last_name", "bio", "role", "is_superuser",
	"confirmation_code", "confirmation_code_expires_at", "created_at", "updated_at",
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var code sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Bio,
		&user.Role,
		&user.IsSuperuser,
		&code,
		&expiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return types.User{}, err
	}
	user.ConfirmationCodeHash = code.String
	if expiresAt.Valid {
		t := expiresAt.Time
		user.ConfirmationCodeExpiresAt = &t
	}
	return user, nil
}

func (r *UserRepository) getBy(ctx context.Context, column string, value any) (types.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(sq.Eq{column: value}).ToSql()
	if err != nil {
		return types.User{}, err
	}
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getBy(ctx, "email", email)
}

// List returns users ordered by username. page.Search matches usernames
// case-insensitively.
func (r *UserRepository) List(ctx context.Context, page types.PageRequest) ([]types.User, int, error) {
	count := psql.Select("COUNT(1)").From("users")
	list := psql.Select(userColumns...).From("users").OrderBy("username")
	if page.Search != "" {
		where := sq.ILike{"username": containsPattern(page.Search)}
		count = count.Where(where)
		list = list.Where(where)
	}

	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery, args, err := paginate(list, page.Offset, page.Limit).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, page.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.Normalize()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (
			username, email, first_name, last_name, bio, role, is_superuser,
			confirmation_code, confirmation_code_expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Bio,
		user.Role,
		user.IsSuperuser,
		nullString(user.ConfirmationCodeHash),
		user.ConfirmationCodeExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// Update writes the profile, role and superuser flag. The confirmation code
// is left untouched; see SetConfirmationCode and RotateConfirmationCode.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.Normalize()
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			first_name = $3,
			last_name = $4,
			bio = $5,
			role = $6,
			is_superuser = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Bio,
		user.Role,
		user.IsSuperuser,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translateError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// Delete removes a user. Reviews and comments they authored are removed by
// the schema's cascade rules.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// SetConfirmationCode replaces whatever code is pending for the user.
func (r *UserRepository) SetConfirmationCode(ctx context.Context, id int, codeHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET confirmation_code = $1,
			confirmation_code_expires_at = $2,
			updated_at = NOW()
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, codeHash, expiresAt, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// RotateConfirmationCode swaps the pending code only if it still equals
// oldHash. ErrConflict means another caller rotated it first.
func (r *UserRepository) RotateConfirmationCode(ctx context.Context, id int, oldHash, newHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET confirmation_code = $1,
			confirmation_code_expires_at = $2,
			updated_at = NOW()
		WHERE id = $3 AND confirmation_code = $4`
	result, err := r.db.ExecContext(ctx, query, newHash, expiresAt, id, oldHash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
