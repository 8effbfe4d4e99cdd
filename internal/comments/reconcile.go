package comments

import (
	"cmp"
	"slices"
	"time"
)

// DefaultMatchWindow is how far apart a pending comment and its confirmed copy
// may be stamped and still count as the same comment. commentwatch reads an
// override from COMMENTS_MATCH_WINDOW.
const DefaultMatchWindow = 10 * time.Second

// Reconciler merges pending comments into a remote snapshot
type Reconciler struct {
	window time.Duration
}

// NewReconciler returns a Reconciler with the given matching window.
// A non-positive window selects DefaultMatchWindow.
func NewReconciler(window time.Duration) Reconciler {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return Reconciler{window: window}
}

// Window returns the matching window in use
func (r Reconciler) Window() time.Duration {
	if r.window <= 0 {
		return DefaultMatchWindow
	}
	return r.window
}

// Reconcile uses the default matching window
func Reconcile(remote, pending []Comment) []Comment {
	return NewReconciler(DefaultMatchWindow).Reconcile(remote, pending)
}

// Reconcile returns the view to render: pending comments without a confirmed
// copy in remote, in submission order, followed by every remote comment newest
// first. Inputs are not modified and the result shares no memory with them.
func (r Reconciler) Reconcile(remote, pending []Comment) []Comment {
	return r.ReconcileClaimed(remote, pending, nil)
}

// ReconcileClaimed is Reconcile with known create results. claims maps pending
// ids to the remote id their write returned: a claimed pending comment is
// confirmed only by that id, and claimed remote comments are never offered to
// other pending comments.
func (r Reconciler) ReconcileClaimed(remote, pending []Comment, claims map[string]string) []Comment {
	matched := r.MatchesClaimed(remote, pending, claims)

	view := make([]Comment, 0, len(pending)+len(remote))
	for _, p := range pending {
		if _, ok := matched[p.ID]; ok {
			continue
		}
		c := p.clone()
		c.Pending = true
		view = append(view, c)
	}

	confirmed := make([]Comment, 0, len(remote))
	for _, c := range remote {
		confirmed = append(confirmed, c.clone())
	}
	slices.SortStableFunc(confirmed, func(a, b Comment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return append(view, confirmed...)
}

// Matches maps pending ids to the remote ids that confirm them. Each remote
// comment confirms at most one pending comment, and as many pending comments
// are matched as the candidates allow. Among candidates the closest timestamp
// is preferred, ties going to the earlier snapshot position.
func (r Reconciler) Matches(remote, pending []Comment) map[string]string {
	return r.MatchesClaimed(remote, pending, nil)
}

// MatchesClaimed is Matches with known create results; see ReconcileClaimed
func (r Reconciler) MatchesClaimed(remote, pending []Comment, claims map[string]string) map[string]string {
	matched := make(map[string]string)
	if len(remote) == 0 || len(pending) == 0 {
		return matched
	}

	index := make(map[string]int, len(remote))
	for i, c := range remote {
		index[c.ID] = i
	}
	taken := make([]bool, len(remote))
	for _, remoteID := range claims {
		if i, ok := index[remoteID]; ok {
			taken[i] = true
		}
	}

	open := make([]Comment, 0, len(pending))
	for _, p := range pending {
		remoteID, claimed := claims[p.ID]
		if !claimed {
			open = append(open, p)
			continue
		}
		if _, ok := index[remoteID]; ok {
			matched[p.ID] = remoteID
		}
	}

	candidates := make([][]int, len(open))
	for i, p := range open {
		candidates[i] = r.candidates(p, remote, taken)
	}

	// owner[i] is the open pending entry currently holding remote[i]
	owner := make([]int, len(remote))
	for i := range owner {
		owner[i] = -1
	}
	for i := range open {
		augment(i, candidates, owner, make([]bool, len(remote)))
	}
	for ri, pi := range owner {
		if pi >= 0 {
			matched[open[pi].ID] = remote[ri].ID
		}
	}
	return matched
}

// augment finds a remote entry for pending p, moving earlier assignments to
// their other candidates when that frees one up
func augment(p int, candidates [][]int, owner []int, seen []bool) bool {
	for _, ri := range candidates[p] {
		if seen[ri] {
			continue
		}
		seen[ri] = true
		if owner[ri] < 0 || augment(owner[ri], candidates, owner, seen) {
			owner[ri] = p
			return true
		}
	}
	return false
}

// candidates lists the remote entries p may match, closest first
func (r Reconciler) candidates(p Comment, remote []Comment, taken []bool) []int {
	text := normalizeText(p.Text)
	window := r.Window()

	type candidate struct {
		index int
		delta time.Duration
	}
	var found []candidate
	for i, c := range remote {
		if taken[i] || c.Pending || c.AuthorID != p.AuthorID {
			continue
		}
		if normalizeText(c.Text) != text {
			continue
		}
		delta := c.CreatedAt.Sub(p.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		found = append(found, candidate{index: i, delta: delta})
	}
	slices.SortStableFunc(found, func(a, b candidate) int {
		return cmp.Compare(a.delta, b.delta)
	})

	out := make([]int, len(found))
	for i, c := range found {
		out[i] = c.index
	}
	return out
}
