package post

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/loader"
)

type countingUserRepo struct {
	mu    sync.Mutex
	calls int
	users map[int64]domain.User
}

func (r *countingUserRepo) CreateUser(ctx context.Context, user *domain.User) error { return nil }
func (r *countingUserRepo) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return nil, nil
}
func (r *countingUserRepo) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	return nil, nil
}

func (r *countingUserRepo) ListUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	var out []domain.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type countingVoteRepo struct {
	mu    sync.Mutex
	calls int
	votes map[loader.VoteKey]int
}

func (r *countingVoteRepo) ApplyVote(ctx context.Context, postID, userID int64, value int) (int, error) {
	return 0, nil
}

func (r *countingVoteRepo) ListVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]domain.Vote, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	var out []domain.Vote
	for _, postID := range postIDs {
		if v, ok := r.votes[loader.VoteKey{PostID: postID, UserID: userID}]; ok {
			out = append(out, domain.Vote{UserID: userID, PostID: postID, Value: v})
		}
	}
	return out, nil
}

func TestResolveBatchesAuthorsAndVotes(t *testing.T) {
	users := &countingUserRepo{users: map[int64]domain.User{
		1: {ID: 1, Username: "ada", Email: "ada@example.com"},
		2: {ID: 2, Username: "ben", Email: "ben@example.com"},
		3: {ID: 3, Username: "cam", Email: "cam@example.com"},
	}}
	votes := &countingVoteRepo{votes: map[loader.VoteKey]int{
		{PostID: 1, UserID: 1}: domain.Upvote,
		{PostID: 4, UserID: 1}: domain.Downvote,
	}}

	now := time.Now().UTC()
	posts := make([]domain.Post, 0, 10)
	for i := 1; i <= 10; i++ {
		posts = append(posts, domain.Post{
			ID:        int64(i),
			Title:     "t",
			Body:      "b",
			AuthorID:  int64(1 + i%3),
			CreatedAt: now,
		})
	}

	ld := loader.NewBundle(users, votes, loader.WithWait(5*time.Millisecond))
	views, err := Resolve(context.Background(), posts, ptr(1), ld)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if users.calls != 1 {
		t.Fatalf("expected one batched author fetch, got %d", users.calls)
	}
	if votes.calls != 1 {
		t.Fatalf("expected one batched vote fetch, got %d", votes.calls)
	}
	if len(views) != 10 {
		t.Fatalf("expected 10 views, got %d", len(views))
	}
	for _, v := range views {
		if v.Author.Username == "" {
			t.Fatalf("post %d missing author", v.ID)
		}
	}
	if views[0].VoteStatus == nil || *views[0].VoteStatus != domain.Upvote {
		t.Fatalf("post 1 vote status wrong: %v", views[0].VoteStatus)
	}
	if views[1].VoteStatus != nil {
		t.Fatalf("post 2 should be not-voted, got %v", *views[1].VoteStatus)
	}
}

func TestResolveRedactsForeignEmails(t *testing.T) {
	users := &countingUserRepo{users: map[int64]domain.User{
		1: {ID: 1, Username: "ada", Email: "ada@example.com"},
		2: {ID: 2, Username: "ben", Email: "ben@example.com"},
	}}
	votes := &countingVoteRepo{}
	posts := []domain.Post{
		{ID: 1, AuthorID: 1, Body: "b"},
		{ID: 2, AuthorID: 2, Body: "b"},
	}

	ld := loader.NewBundle(users, votes, loader.WithWait(time.Millisecond))
	views, err := Resolve(context.Background(), posts, ptr(1), ld)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if views[0].Author.Email != "ada@example.com" {
		t.Fatalf("viewer should see own email, got %q", views[0].Author.Email)
	}
	if views[1].Author.Email != "" {
		t.Fatalf("foreign email leaked: %q", views[1].Author.Email)
	}
}

func TestResolveAnonymousViewer(t *testing.T) {
	users := &countingUserRepo{users: map[int64]domain.User{1: {ID: 1, Username: "ada", Email: "a@e"}}}
	votes := &countingVoteRepo{votes: map[loader.VoteKey]int{{PostID: 1, UserID: 1}: 1}}
	posts := []domain.Post{{ID: 1, AuthorID: 1, Body: "b"}}

	ld := loader.NewBundle(users, votes, loader.WithWait(time.Millisecond))
	views, err := Resolve(context.Background(), posts, nil, ld)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if views[0].VoteStatus != nil {
		t.Fatal("anonymous viewer must not get vote status")
	}
	if views[0].Author.Email != "" {
		t.Fatal("anonymous viewer must not see emails")
	}
	if votes.calls != 0 {
		t.Fatalf("vote store queried for anonymous viewer %d times", votes.calls)
	}
}
