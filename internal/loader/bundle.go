package loader

import (
	"context"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
)

// VoteKey identifies one viewer's vote on one post. Vote state is
// user-specific, so the post id alone is not a safe cache key.
type VoteKey struct {
	PostID int64
	UserID int64
}

// Bundle carries the per-request loaders handed through field resolution.
// Build a fresh Bundle for every inbound request; reusing one would leak
// another viewer's vote state and stale authors.
type Bundle struct {
	Users *Loader[int64, domain.User]
	Votes *Loader[VoteKey, domain.Vote]
}

// NewBundle wires loaders to the repositories for one request.
func NewBundle(users repository.UserRepository, votes repository.VoteRepository, opts ...Option) *Bundle {
	return &Bundle{
		Users: New(userBatch(users), opts...),
		Votes: New(voteBatch(votes), opts...),
	}
}

func userBatch(users repository.UserRepository) BatchFunc[int64, domain.User] {
	return func(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
		fetched, err := users.ListUsersByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]domain.User, len(fetched))
		for _, u := range fetched {
			byID[u.ID] = u
		}
		return byID, nil
	}
}

// voteBatch groups keys by viewer before querying. In practice a request
// serves a single viewer, so the whole page costs one filtered query.
func voteBatch(votes repository.VoteRepository) BatchFunc[VoteKey, domain.Vote] {
	return func(ctx context.Context, keys []VoteKey) (map[VoteKey]domain.Vote, error) {
		byUser := make(map[int64][]int64)
		for _, key := range keys {
			byUser[key.UserID] = append(byUser[key.UserID], key.PostID)
		}
		out := make(map[VoteKey]domain.Vote, len(keys))
		for userID, postIDs := range byUser {
			fetched, err := votes.ListVotesByUser(ctx, userID, postIDs)
			if err != nil {
				return nil, err
			}
			for _, v := range fetched {
				out[VoteKey{PostID: v.PostID, UserID: v.UserID}] = v
			}
		}
		return out, nil
	}
}
