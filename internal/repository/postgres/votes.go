package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
)

// ApplyVote executes the read-decide-write cycle for one (post, user) pair
// inside a single transaction. The SELECT ... FOR UPDATE serializes
// concurrent casts against an existing vote row; a concurrent pair of
// first-time casts by the same user collapses onto the primary key and the
// loser surfaces as ErrDuplicate. Votes on other pairs are untouched: the
// only shared row is the post, locked just for the score update.
func (r *Repository) ApplyVote(ctx context.Context, postID, userID int64, value int) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var existing *int
	var current int
	err = tx.QueryRow(ctx,
		`SELECT value FROM votes WHERE user_id = $1 AND post_id = $2 FOR UPDATE`,
		userID, postID,
	).Scan(&current)
	switch {
	case err == nil:
		existing = &current
	case errors.Is(err, pgx.ErrNoRows):
		// first vote for this pair
	default:
		return 0, err
	}

	delta := domain.ScoreDelta(existing, value)

	switch {
	case existing == nil:
		_, err = tx.Exec(ctx,
			`INSERT INTO votes (user_id, post_id, value) VALUES ($1, $2, $3)`,
			userID, postID, value,
		)
	case delta != 0:
		_, err = tx.Exec(ctx,
			`UPDATE votes SET value = $3 WHERE user_id = $1 AND post_id = $2`,
			userID, postID, value,
		)
	}
	if err != nil {
		return 0, mapPgError(err)
	}

	var score int
	if delta == 0 {
		err = tx.QueryRow(ctx, `SELECT score FROM posts WHERE id = $1`, postID).Scan(&score)
	} else {
		err = tx.QueryRow(ctx,
			`UPDATE posts SET score = score + $2 WHERE id = $1 RETURNING score`,
			postID, delta,
		).Scan(&score)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return score, nil
}

// ListVotesByUser bulk-fetches one viewer's votes across a page of posts.
// Pairs with no row are omitted, which the loader reads as "not voted".
func (r *Repository) ListVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]domain.Vote, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT user_id, post_id, value FROM votes
		WHERE user_id = $1 AND post_id = ANY($2)`
	rows, err := r.pool.Query(ctx, query, userID, postIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := make([]domain.Vote, 0, len(postIDs))
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.UserID, &v.PostID, &v.Value); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
