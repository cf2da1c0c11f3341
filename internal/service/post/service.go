// Package post owns the feed: creation, author-only mutation, and the
// cursor-paged listing the board is read through.
package post

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
)

const (
	// maxPageSize is the hard cap on a single page; larger requests are
	// clamped silently.
	maxPageSize = 50
	// snippetLength bounds the teaser returned with list views.
	snippetLength = 100
)

// ErrUnauthenticated rejects anonymous mutations.
var ErrUnauthenticated = errors.New("post: authentication required")

// ErrNotFound reports a missing post, or one the viewer may not mutate.
var ErrNotFound = errors.New("post: not found")

// ErrInvalidInput rejects empty titles or bodies.
var ErrInvalidInput = errors.New("post: title and body are required")

// ErrBadCursor rejects a continuation token that does not parse.
var ErrBadCursor = errors.New("post: malformed cursor")

// Service manages posts.
type Service struct {
	posts  repository.PostRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(posts repository.PostRepository, logger *slog.Logger) Service {
	return Service{posts: posts, logger: logger}
}

// Page is one bounded slice of the feed. NextCursor carries the creation
// timestamp of the last post as epoch milliseconds and is only meaningful
// while HasMore is true.
type Page struct {
	Posts      []domain.Post
	HasMore    bool
	NextCursor string
}

// List returns a page of posts ordered newest first. cursor, when
// non-empty, is the epoch-millisecond timestamp of the last post from the
// previous page; only strictly older posts are returned. Each call is
// independent: no server-side cursor state is held between pages.
func (s Service) List(ctx context.Context, limit int, cursor string) (Page, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var before *time.Time
	if strings.TrimSpace(cursor) != "" {
		millis, err := strconv.ParseInt(strings.TrimSpace(cursor), 10, 64)
		if err != nil {
			return Page{}, ErrBadCursor
		}
		t := time.UnixMilli(millis).UTC()
		before = &t
	}

	// fetch one extra row purely as the has-more probe
	fetched, err := s.posts.ListPosts(ctx, limit+1, before)
	if err != nil {
		s.logger.Error("list posts failed", "error", err)
		return Page{}, err
	}

	page := Page{HasMore: len(fetched) == limit+1}
	if page.HasMore {
		fetched = fetched[:limit]
	}
	page.Posts = fetched
	if page.HasMore && len(fetched) > 0 {
		page.NextCursor = strconv.FormatInt(fetched[len(fetched)-1].CreatedAt.UnixMilli(), 10)
	}
	return page, nil
}

// Get fetches a single post.
func (s Service) Get(ctx context.Context, id int64) (*domain.Post, error) {
	p, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create stores a new post for the viewer with a zero score.
func (s Service) Create(ctx context.Context, viewerID *int64, title, body string) (*domain.Post, error) {
	if viewerID == nil {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return nil, ErrInvalidInput
	}
	p := &domain.Post{Title: title, Body: body, AuthorID: *viewerID}
	if err := s.posts.CreatePost(ctx, p); err != nil {
		s.logger.Error("create post failed", "user_id", *viewerID, "error", err)
		return nil, err
	}
	s.logger.Info("post created", "post_id", p.ID, "user_id", *viewerID)
	return p, nil
}

// Update rewrites title and body together; a post is never half-edited.
// Only the author may update, enforced by the repository predicate, so a
// foreign post looks identical to a missing one.
func (s Service) Update(ctx context.Context, viewerID *int64, id int64, title, body string) (*domain.Post, error) {
	if viewerID == nil {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return nil, ErrInvalidInput
	}
	p, err := s.posts.UpdatePost(ctx, id, *viewerID, title, body)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Error("update post failed", "post_id", id, "error", err)
		return nil, err
	}
	return p, nil
}

// Delete removes the viewer's post. Unlike the vote and read paths, this
// reports failure as false instead of surfacing the storage error.
func (s Service) Delete(ctx context.Context, viewerID *int64, id int64) bool {
	if viewerID == nil {
		return false
	}
	if err := s.posts.DeletePost(ctx, id, *viewerID); err != nil {
		s.logger.Error("delete post failed", "post_id", id, "error", err)
		return false
	}
	return true
}

// Snippet returns the leading characters of a body as a teaser, appending
// an ellipsis when the body was truncated.
func Snippet(body string) string {
	runes := []rune(body)
	if len(runes) <= snippetLength {
		return body
	}
	return string(runes[:snippetLength]) + "..."
}
