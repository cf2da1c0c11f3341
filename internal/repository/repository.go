package repository

import (
	"context"
	"time"

	"github.com/dglav/reddit-clone-server/internal/domain"
)

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByLogin(ctx context.Context, usernameOrEmail string) (*domain.User, error)
	ListUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error)
}

// PostRepository persists posts and serves the cursor-paged feed.
type PostRepository interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPostByID(ctx context.Context, id int64) (*domain.Post, error)
	// ListPosts returns up to limit posts ordered by created_at DESC, id
	// DESC, restricted to rows strictly older than before when it is set.
	ListPosts(ctx context.Context, limit int, before *time.Time) ([]domain.Post, error)
	// UpdatePost rewrites title and body together. ErrNotFound when the
	// post does not exist or authorID is not its author.
	UpdatePost(ctx context.Context, id, authorID int64, title, body string) (*domain.Post, error)
	DeletePost(ctx context.Context, id, authorID int64) error
}

// VoteRepository applies votes and serves the batched vote-state lookups.
type VoteRepository interface {
	// ApplyVote runs the whole first-vote / flip / no-op decision as one
	// transaction against the vote row and the post's score, returning the
	// score after commit.
	ApplyVote(ctx context.Context, postID, userID int64, value int) (int, error)
	// ListVotesByUser returns the viewer's votes for the given posts.
	// Posts the viewer has not voted on are simply absent.
	ListVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]domain.Vote, error)
}
