package post

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/loader"
)

// AuthorView is the embedded author projection. Email is redacted to the
// empty string unless the viewer is the author.
type AuthorView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// View is one resolved post: the row plus its relational fields. VoteStatus
// is nil when the viewer is anonymous or has not voted, otherwise ±1.
type View struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	TextSnippet string     `json:"textSnippet"`
	Score       int        `json:"score"`
	VoteStatus  *int       `json:"voteStatus"`
	Author      AuthorView `json:"author"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Resolve turns rows into views, resolving author and vote-state through
// the request's loader bundle. Resolutions run concurrently per post and
// the bundle collapses them into one bulk fetch per relation.
func Resolve(ctx context.Context, posts []domain.Post, viewerID *int64, ld *loader.Bundle) ([]View, error) {
	views := make([]View, len(posts))
	g, ctx := errgroup.WithContext(ctx)
	for i := range posts {
		p := posts[i]
		g.Go(func() error {
			v := View{
				ID:          p.ID,
				Title:       p.Title,
				Body:        p.Body,
				TextSnippet: Snippet(p.Body),
				Score:       p.Score,
				CreatedAt:   p.CreatedAt,
				UpdatedAt:   p.UpdatedAt,
			}

			author, ok, err := ld.Users.Load(ctx, p.AuthorID)
			if err != nil {
				return err
			}
			if ok {
				v.Author = AuthorView{ID: author.ID, Username: author.Username}
				if viewerID != nil && *viewerID == author.ID {
					v.Author.Email = author.Email
				}
			}

			if viewerID != nil {
				vote, ok, err := ld.Votes.Load(ctx, loader.VoteKey{PostID: p.ID, UserID: *viewerID})
				if err != nil {
					return err
				}
				if ok {
					value := vote.Value
					v.VoteStatus = &value
				}
			}

			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}
