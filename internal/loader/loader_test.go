package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dglav/reddit-clone-server/internal/domain"
)

type countingBatch struct {
	mu      sync.Mutex
	calls   int
	batches [][]int64
}

func (c *countingBatch) fetch(ctx context.Context, keys []int64) (map[int64]string, error) {
	c.mu.Lock()
	c.calls++
	c.batches = append(c.batches, append([]int64(nil), keys...))
	c.mu.Unlock()

	out := make(map[int64]string, len(keys))
	for _, k := range keys {
		if k < 0 {
			continue // simulate a missing row
		}
		out[k] = "user-" + string(rune('a'+k))
	}
	return out, nil
}

func TestLoadCoalescesDistinctKeys(t *testing.T) {
	counter := &countingBatch{}
	l := New(counter.fetch, WithWait(5*time.Millisecond))

	// 10 posts authored by only 3 distinct users.
	authorIDs := []int64{1, 2, 3, 1, 2, 3, 1, 2, 3, 1}
	var wg sync.WaitGroup
	results := make([]string, len(authorIDs))
	for i, id := range authorIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			v, ok, err := l.Load(context.Background(), id)
			if err != nil || !ok {
				t.Errorf("load key %d: ok=%v err=%v", id, ok, err)
				return
			}
			results[i] = v
		}(i, id)
	}
	wg.Wait()

	if counter.calls != 1 {
		t.Fatalf("expected exactly one batched fetch, got %d", counter.calls)
	}
	if got := len(counter.batches[0]); got != 3 {
		t.Fatalf("expected 3 distinct keys in batch, got %d: %v", got, counter.batches[0])
	}
	for i, id := range authorIDs {
		want := "user-" + string(rune('a'+id))
		if results[i] != want {
			t.Fatalf("slot %d resolved to %q, want %q", i, results[i], want)
		}
	}
}

func TestLoadMissingKeyIsAbsentNotError(t *testing.T) {
	counter := &countingBatch{}
	l := New(counter.fetch, WithWait(time.Millisecond))

	_, ok, err := l.Load(context.Background(), -7)
	if err != nil {
		t.Fatalf("missing key returned error: %v", err)
	}
	if ok {
		t.Fatal("missing key reported as present")
	}
}

func TestLoadMemoizesWithinRequest(t *testing.T) {
	counter := &countingBatch{}
	l := New(counter.fetch, WithWait(time.Millisecond))

	if _, _, err := l.Load(context.Background(), 4); err != nil {
		t.Fatalf("first load: %v", err)
	}
	// second round, same key: must reuse the resolved batch
	if _, _, err := l.Load(context.Background(), 4); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if counter.calls != 1 {
		t.Fatalf("expected memoized result, got %d fetches", counter.calls)
	}
}

func TestLoadDispatchesEarlyAtMaxBatch(t *testing.T) {
	counter := &countingBatch{}
	l := New(counter.fetch, WithWait(time.Hour), WithMaxBatch(2))

	var wg sync.WaitGroup
	for _, id := range []int64{1, 2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, _, err := l.Load(context.Background(), id); err != nil {
				t.Errorf("load %d: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if counter.calls != 1 {
		t.Fatalf("expected the full batch to dispatch once, got %d", counter.calls)
	}
}

func TestLoadPropagatesFetchError(t *testing.T) {
	boom := errors.New("store down")
	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		return nil, boom
	}, WithWait(time.Millisecond))

	if _, _, err := l.Load(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

type stubVoteStore struct {
	mu      sync.Mutex
	queries int
	votes   map[VoteKey]int
}

func (s *stubVoteStore) ApplyVote(ctx context.Context, postID, userID int64, value int) (int, error) {
	return 0, errors.New("not used")
}

func (s *stubVoteStore) ListVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	var out []domain.Vote
	for _, postID := range postIDs {
		if v, ok := s.votes[VoteKey{PostID: postID, UserID: userID}]; ok {
			out = append(out, domain.Vote{UserID: userID, PostID: postID, Value: v})
		}
	}
	return out, nil
}

func TestVoteBundleUsesCompositeKeys(t *testing.T) {
	store := &stubVoteStore{votes: map[VoteKey]int{
		{PostID: 10, UserID: 1}: domain.Upvote,
		{PostID: 11, UserID: 1}: domain.Downvote,
	}}
	b := NewBundle(nil, store, WithWait(5*time.Millisecond))

	var wg sync.WaitGroup
	type slot struct {
		vote domain.Vote
		ok   bool
	}
	slots := make([]slot, 3)
	for i, postID := range []int64{10, 11, 12} {
		wg.Add(1)
		go func(i int, postID int64) {
			defer wg.Done()
			v, ok, err := b.Votes.Load(context.Background(), VoteKey{PostID: postID, UserID: 1})
			if err != nil {
				t.Errorf("load vote for post %d: %v", postID, err)
				return
			}
			slots[i] = slot{vote: v, ok: ok}
		}(i, postID)
	}
	wg.Wait()

	if store.queries != 1 {
		t.Fatalf("expected one filtered vote query, got %d", store.queries)
	}
	if !slots[0].ok || slots[0].vote.Value != domain.Upvote {
		t.Fatalf("post 10 vote wrong: %+v", slots[0])
	}
	if !slots[1].ok || slots[1].vote.Value != domain.Downvote {
		t.Fatalf("post 11 vote wrong: %+v", slots[1])
	}
	if slots[2].ok {
		t.Fatalf("post 12 should be not-voted, got %+v", slots[2])
	}
}
