// Package comments keeps a recipe's comment list responsive while writes are
// in flight. Submissions show up at once as pending entries, the remote feed
// stays authoritative, and Reconcile folds the two into one view without
// duplicates.
package comments

import (
	"slices"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PendingPrefix marks temporary ids handed out before the remote source confirms a comment
const PendingPrefix = "pending-"

const pendingIDSize = 16

// Comment is one remark on a recipe, either confirmed by the remote source or pending
type Comment struct {
	ID         string    `json:"id"`
	RecipeID   string    `json:"recipe_id"`
	AuthorID   string    `json:"user_id"`
	AuthorName string    `json:"user_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Likes      int       `json:"likes"`
	LikedBy    []string  `json:"liked_by"`
	Pending    bool      `json:"pending,omitempty"`
}

// Identity is the signed-in user as supplied by the identity provider
type Identity struct {
	UserID      string
	DisplayName string
}

// IsPendingID reports whether id is a locally generated temporary id
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingPrefix)
}

// NewPendingID returns a fresh temporary id
func NewPendingID() string {
	return PendingPrefix + gonanoid.Must(pendingIDSize)
}

// LikedByUser reports whether userID is in the liker set
func (c Comment) LikedByUser(userID string) bool {
	return slices.Contains(c.LikedBy, userID)
}

// clone returns a copy that shares no slices with c
func (c Comment) clone() Comment {
	if c.LikedBy != nil {
		c.LikedBy = slices.Clone(c.LikedBy)
	}
	return c
}

// withReaction returns a copy where userID's membership in the liker set equals liked
func (c Comment) withReaction(userID string, liked bool) Comment {
	out := c.clone()
	has := out.LikedByUser(userID)
	switch {
	case liked && !has:
		out.LikedBy = append(out.LikedBy, userID)
		out.Likes++
	case !liked && has:
		out.LikedBy = slices.DeleteFunc(out.LikedBy, func(id string) bool { return id == userID })
		if out.Likes > 0 {
			out.Likes--
		}
	}
	return out
}

// normalizeText is the form used both for validation and for duplicate matching
func normalizeText(text string) string {
	return strings.TrimSpace(text)
}
