// Package vote applies vote intents against the store. The heavy lifting
// is transactional and lives in the repository; this layer normalizes the
// client value and enforces the auth requirement.
package vote

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
)

// ErrUnauthenticated rejects anonymous vote attempts.
var ErrUnauthenticated = errors.New("vote: authentication required")

// ErrPostNotFound reports a vote against a missing post.
var ErrPostNotFound = errors.New("vote: post not found")

// Service casts votes.
type Service struct {
	votes  repository.VoteRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(votes repository.VoteRepository, logger *slog.Logger) Service {
	return Service{votes: votes, logger: logger}
}

// Cast normalizes rawValue and applies it for the viewer, returning the
// post's score after the vote landed. Re-casting the same value is
// idempotent; a changed value flips the vote.
func (s Service) Cast(ctx context.Context, postID int64, viewerID *int64, rawValue int) (int, error) {
	if viewerID == nil {
		return 0, ErrUnauthenticated
	}
	value := domain.NormalizeVote(rawValue)

	score, err := s.votes.ApplyVote(ctx, postID, *viewerID, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrPostNotFound
		}
		s.logger.Error("vote apply failed", "post_id", postID, "user_id", *viewerID, "error", err)
		return 0, err
	}
	s.logger.Info("vote applied", "post_id", postID, "user_id", *viewerID, "value", value, "score", score)
	return score, nil
}
