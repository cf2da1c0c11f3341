package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.PostRepository = (*Repository)(nil)
	_ repository.VoteRepository = (*Repository)(nil)
)

// CreateUser inserts a user and backfills the generated id and timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT id, username, email, password_hash, created_at, updated_at
		FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByLogin fetches a user by username or email.
func (r *Repository) GetUserByLogin(ctx context.Context, usernameOrEmail string) (*domain.User, error) {
	const query = `SELECT id, username, email, password_hash, created_at, updated_at
		FROM users WHERE username = $1 OR email = $1`
	row := r.pool.QueryRow(ctx, query, usernameOrEmail)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUsersByIDs bulk-fetches users by primary key. Callers are expected
// to tolerate missing ids; the result simply omits them.
func (r *Repository) ListUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, username, email, password_hash, created_at, updated_at
		FROM users WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreatePost inserts a post with a zero score.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	const query = `INSERT INTO posts (title, body, author_id)
		VALUES ($1, $2, $3)
		RETURNING id, score, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, post.Title, post.Body, post.AuthorID).
		Scan(&post.ID, &post.Score, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetPostByID retrieves a post by identifier.
func (r *Repository) GetPostByID(ctx context.Context, id int64) (*domain.Post, error) {
	const query = `SELECT id, title, body, author_id, score, created_at, updated_at
		FROM posts WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var p domain.Post
	if err := row.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &p.Score, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListPosts serves the paginated feed. Ordering is newest first with id as
// the tie break so that posts sharing a timestamp page deterministically.
func (r *Repository) ListPosts(ctx context.Context, limit int, before *time.Time) ([]domain.Post, error) {
	const base = `SELECT id, title, body, author_id, score, created_at, updated_at
		FROM posts`
	var (
		rows pgx.Rows
		err  error
	)
	if before != nil {
		rows, err = r.pool.Query(ctx, base+` WHERE created_at < $1 ORDER BY created_at DESC, id DESC LIMIT $2`, *before, limit)
	} else {
		rows, err = r.pool.Query(ctx, base+` ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]domain.Post, 0, limit)
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &p.Score, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// UpdatePost rewrites title and body in one statement so a post is never
// left half-edited. The author_id predicate doubles as the ownership check.
func (r *Repository) UpdatePost(ctx context.Context, id, authorID int64, title, body string) (*domain.Post, error) {
	const query = `UPDATE posts
		SET title = $3, body = $4, updated_at = NOW()
		WHERE id = $1 AND author_id = $2
		RETURNING id, title, body, author_id, score, created_at, updated_at`
	row := r.pool.QueryRow(ctx, query, id, authorID, title, body)
	var p domain.Post
	if err := row.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &p.Score, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DeletePost removes a post owned by authorID. Votes go with it via the
// foreign key cascade. Deleting an absent or foreign post is not an error.
func (r *Repository) DeletePost(ctx context.Context, id, authorID int64) error {
	const query = `DELETE FROM posts WHERE id = $1 AND author_id = $2`
	_, err := r.pool.Exec(ctx, query, id, authorID)
	return err
}

// mapPgError translates driver error codes onto repository sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrDuplicate
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return fmt.Errorf("postgres: %w", err)
}
