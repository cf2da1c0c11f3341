package domain

// Vote values. A vote row either exists with one of these values or does
// not exist at all; there is no persisted neutral state.
const (
	Upvote   = 1
	Downvote = -1
)

// Vote records one user's vote on one post. The (UserID, PostID) pair is
// the identity: at most one row per pair.
type Vote struct {
	UserID int64
	PostID int64
	Value  int
}

// NormalizeVote maps a raw client value onto Upvote or Downvote. Anything
// other than an explicit downvote counts as an upvote, matching the
// behavior clients already depend on.
func NormalizeVote(raw int) int {
	if raw == Downvote {
		return Downvote
	}
	return Upvote
}

// ScoreDelta returns the adjustment to a post's score when a user whose
// existing vote is existing (nil when they have not voted) casts value.
// A repeated identical vote is a no-op; a flip both removes the old
// contribution and adds the new one, hence 2*value.
func ScoreDelta(existing *int, value int) int {
	switch {
	case existing == nil:
		return value
	case *existing == value:
		return 0
	default:
		return 2 * value
	}
}
