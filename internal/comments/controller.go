package comments

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Remote performs the authoritative writes
type Remote interface {
	CreateComment(ctx context.Context, recipeID, authorID, authorName, text string) (Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	SetReaction(ctx context.Context, commentID, userID string, liked bool) error
}

// Source pushes the full, newest-first comment list of a recipe on every change.
// onError reports a failed or dropped feed; reconnecting is the source's job.
type Source interface {
	Subscribe(ctx context.Context, recipeID string, onSnapshot func([]Comment), onError func(error)) (unsubscribe func(), err error)
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches the pending id of a submission to a write context
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKeyFrom returns the key set by WithIdempotencyKey
func IdempotencyKeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}

// EventKind identifies what changed
type EventKind int

const (
	EventViewChanged EventKind = iota
	EventSubmitFailed
	EventRetractFailed
	EventReactionFailed
	EventStale
)

func (k EventKind) String() string {
	switch k {
	case EventViewChanged:
		return "view_changed"
	case EventSubmitFailed:
		return "submit_failed"
	case EventRetractFailed:
		return "retract_failed"
	case EventReactionFailed:
		return "reaction_failed"
	case EventStale:
		return "stale"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event carries a freshly computed view after a state change. Listeners can be
// called from several goroutines; Version grows with every event, so a
// renderer should drop events older than the last one it drew.
type Event struct {
	Kind      EventKind
	Version   uint64
	View      []Comment
	Stale     bool
	CommentID string
	Draft     string // text to restore after EventSubmitFailed
	Err       error
}

// Option configures a Controller
type Option func(*Controller)

// WithSource sets the realtime feed used by Start
func WithSource(src Source) Option {
	return func(c *Controller) { c.source = src }
}

// WithMatchWindow overrides DefaultMatchWindow
func WithMatchWindow(d time.Duration) Option {
	return func(c *Controller) { c.reconciler = NewReconciler(d) }
}

// WithListener registers the function that receives every Event
func WithListener(fn func(Event)) Option {
	return func(c *Controller) { c.listener = fn }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithWriteTimeout bounds each remote write; zero means no bound
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Controller) { c.writeTimeout = d }
}

// WithClock replaces time.Now for pending timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// assumption is a pending entry retired by text matching while its own write
// was still open
type assumption struct {
	comment  Comment
	remoteID string
}

type reactionIntent struct {
	liked bool
	seq   uint64
}

// Controller owns the comment state of one recipe: the last remote snapshot,
// the pending store, and the optimistic retractions and reactions layered on
// top. Methods are safe for concurrent use and never wait on the network.
type Controller struct {
	recipeID     string
	remote       Remote
	source       Source
	reconciler   Reconciler
	listener     func(Event)
	log          zerolog.Logger
	writeTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	pending     *PendingStore
	claims      map[string]string // pending id -> id returned by a successful create
	inflight    map[string]struct{}
	assumed     map[string]assumption // pending id -> guess made before its create returned
	snapshot    []Comment
	hidden      map[string]struct{}
	reactions   map[string]map[string]reactionIntent // comment id -> user id -> intent
	seq         uint64
	version     uint64
	stale       bool
	closed      bool
	unsubscribe func()

	wg sync.WaitGroup
}

// NewController returns a controller for recipeID writing through remote
func NewController(recipeID string, remote Remote, opts ...Option) *Controller {
	c := &Controller{
		recipeID:   recipeID,
		remote:     remote,
		reconciler: NewReconciler(DefaultMatchWindow),
		log:        zerolog.Nop(),
		now:        time.Now,
		pending:    NewPendingStore(),
		claims:     make(map[string]string),
		inflight:   make(map[string]struct{}),
		assumed:    make(map[string]assumption),
		hidden:     make(map[string]struct{}),
		reactions:  make(map[string]map[string]reactionIntent),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "comments").Str("recipe_id", recipeID).Logger()
	return c
}

// RecipeID returns the recipe this controller tracks
func (c *Controller) RecipeID() string {
	return c.recipeID
}

// Start subscribes to the source. A failure leaves the controller usable on
// an empty, stale view.
func (c *Controller) Start(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("%w: no source configured", ErrSubscription)
	}

	unsubscribe, err := c.source.Subscribe(ctx, c.recipeID, c.ApplySnapshot, c.FeedFailed)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubscription, err)
		c.FeedFailed(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.log.Debug().Msg("Subscribed to comment feed")
	return nil
}

// Close unsubscribes and waits for in-flight writes to finish
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.wg.Wait()
}

// View returns the current reconciled view
func (c *Controller) View() []Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Stale reports whether the last feed event was a failure
func (c *Controller) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// PendingCount returns the number of unconfirmed submissions
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// Submit adds a pending comment and writes it in the background. The returned
// comment is the pending entry; a failed write removes it again and emits
// EventSubmitFailed with the text in Event.Draft.
func (c *Controller) Submit(ctx context.Context, recipeID, authorID, authorName, text string) (Comment, error) {
	body := normalizeText(text)
	if body == "" {
		return Comment{}, fmt.Errorf("%w: comment text is empty", ErrValidation)
	}
	if recipeID != c.recipeID {
		return Comment{}, fmt.Errorf("%w: recipe %q is not tracked here", ErrValidation, recipeID)
	}
	if authorID == "" {
		return Comment{}, fmt.Errorf("%w: author id is required", ErrValidation)
	}

	pc := Comment{
		ID:         NewPendingID(),
		RecipeID:   recipeID,
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       body,
		CreatedAt:  c.now(),
		LikedBy:    []string{},
		Pending:    true,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Comment{}, ErrClosed
	}
	if err := c.pending.Insert(pc); err != nil {
		c.mu.Unlock()
		return Comment{}, err
	}
	c.inflight[pc.ID] = struct{}{}
	ev := c.eventLocked(EventViewChanged)
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(ev)
	go c.create(ctx, pc)

	return pc.clone(), nil
}

func (c *Controller) create(ctx context.Context, pc Comment) {
	defer c.wg.Done()

	wctx, cancel := c.writeContext(ctx)
	defer cancel()

	confirmed, err := c.remote.CreateComment(WithIdempotencyKey(wctx, pc.ID), pc.RecipeID, pc.AuthorID, pc.AuthorName, pc.Text)

	c.mu.Lock()
	delete(c.inflight, pc.ID)
	if err == nil {
		changed := false
		if confirmed.ID != "" {
			changed = c.confirmLocked(pc.ID, confirmed.ID)
		}
		delete(c.assumed, pc.ID)
		var ev Event
		if changed {
			ev = c.eventLocked(EventViewChanged)
		}
		c.mu.Unlock()

		c.log.Debug().Str("pending_id", pc.ID).Str("comment_id", confirmed.ID).Msg("Comment confirmed by remote")
		if changed {
			c.emit(ev)
		}
		return
	}

	_, stillPending := c.pending.Remove(pc.ID)
	delete(c.assumed, pc.ID)
	if !stillPending {
		// A snapshot already carried a matching comment, so the write most
		// likely landed and only the response was lost.
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("pending_id", pc.ID).Msg("Create failed after the feed confirmed the comment")
		return
	}
	ev := c.eventLocked(EventSubmitFailed)
	c.mu.Unlock()

	ev.CommentID = pc.ID
	ev.Draft = pc.Text
	ev.Err = fmt.Errorf("%w: create comment: %w", ErrRemoteWrite, err)
	c.log.Warn().Err(err).Str("pending_id", pc.ID).Msg("Comment submission rolled back")
	c.emit(ev)
}

// confirmLocked records the id a create returned. Text matching may have
// credited that comment to another open submission, or this submission to
// someone else's comment; both guesses are undone before retiring again.
// It reports whether the pending set changed.
func (c *Controller) confirmLocked(pendingID, remoteID string) bool {
	before := c.pending.IDs()
	c.claims[pendingID] = remoteID

	if guess, ok := c.assumed[pendingID]; ok && guess.remoteID != remoteID {
		delete(c.assumed, pendingID)
		if err := c.pending.Restore(guess.comment); err != nil {
			c.log.Error().Err(err).Str("pending_id", pendingID).Msg("Failed to restore pending comment")
		}
	}
	for otherID, guess := range c.assumed {
		if otherID == pendingID || guess.remoteID != remoteID {
			continue
		}
		delete(c.assumed, otherID)
		if err := c.pending.Restore(guess.comment); err != nil {
			c.log.Error().Err(err).Str("pending_id", otherID).Msg("Failed to restore pending comment")
		}
	}

	c.retireLocked()
	return !slices.Equal(before, c.pending.IDs())
}

// retireLocked drops the pending entries the current snapshot confirms
func (c *Controller) retireLocked() {
	matches := c.reconciler.MatchesClaimed(c.visibleSnapshotLocked(), c.pending.List(), c.claims)
	for pendingID, remoteID := range matches {
		pc, ok := c.pending.Remove(pendingID)
		if !ok {
			continue
		}
		if _, claimed := c.claims[pendingID]; claimed {
			continue
		}
		if _, open := c.inflight[pendingID]; open {
			c.assumed[pendingID] = assumption{comment: pc, remoteID: remoteID}
		}
	}
}

// Retract hides a confirmed comment and deletes it remotely. Only the author
// may retract; a failed delete restores the comment and emits EventRetractFailed.
func (c *Controller) Retract(ctx context.Context, commentID, requesterID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.pending.Get(commentID); ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: comment %q is not confirmed yet", ErrValidation, commentID)
	}
	cm, ok := c.visibleLocked(commentID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, commentID)
	}
	if cm.AuthorID != requesterID {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAuthorization, commentID)
	}

	c.hidden[commentID] = struct{}{}
	ev := c.eventLocked(EventViewChanged)
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(ev)
	go c.delete(ctx, commentID)
	return nil
}

func (c *Controller) delete(ctx context.Context, commentID string) {
	defer c.wg.Done()

	wctx, cancel := c.writeContext(ctx)
	defer cancel()

	err := c.remote.DeleteComment(wctx, commentID)
	if err == nil {
		c.log.Debug().Str("comment_id", commentID).Msg("Comment deleted remotely")
		return
	}

	c.mu.Lock()
	delete(c.hidden, commentID)
	ev := c.eventLocked(EventRetractFailed)
	c.mu.Unlock()

	ev.CommentID = commentID
	ev.Err = fmt.Errorf("%w: delete comment: %w", ErrRemoteWrite, err)
	c.log.Warn().Err(err).Str("comment_id", commentID).Msg("Comment retraction rolled back")
	c.emit(ev)
}

// ToggleReaction flips userID's like on a confirmed comment and returns the
// new state. A failed write reverts it and emits EventReactionFailed.
func (c *Controller) ToggleReaction(ctx context.Context, commentID, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if _, ok := c.pending.Get(commentID); ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: comment %q is not confirmed yet", ErrValidation, commentID)
	}
	cm, ok := c.visibleLocked(commentID)
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, commentID)
	}

	liked := !cm.LikedByUser(userID)
	c.seq++
	seq := c.seq
	if c.reactions[commentID] == nil {
		c.reactions[commentID] = make(map[string]reactionIntent)
	}
	c.reactions[commentID][userID] = reactionIntent{liked: liked, seq: seq}
	ev := c.eventLocked(EventViewChanged)
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(ev)
	go c.react(ctx, commentID, userID, liked, seq)
	return liked, nil
}

func (c *Controller) react(ctx context.Context, commentID, userID string, liked bool, seq uint64) {
	defer c.wg.Done()

	wctx, cancel := c.writeContext(ctx)
	defer cancel()

	err := c.remote.SetReaction(wctx, commentID, userID, liked)
	if err == nil {
		return
	}

	c.mu.Lock()
	// A newer toggle owns the intent now; its own outcome decides what to show.
	if intent, ok := c.reactions[commentID][userID]; ok && intent.seq == seq {
		c.dropIntentLocked(commentID, userID)
	}
	ev := c.eventLocked(EventReactionFailed)
	c.mu.Unlock()

	ev.CommentID = commentID
	ev.Err = fmt.Errorf("%w: set reaction: %w", ErrRemoteWrite, err)
	c.log.Warn().Err(err).Str("comment_id", commentID).Bool("liked", liked).Msg("Reaction rolled back")
	c.emit(ev)
}

// ApplySnapshot replaces the remote state with a new authoritative list.
// Pending entries confirmed by it are retired, and optimistic retractions and
// reactions it already reflects are dropped.
func (c *Controller) ApplySnapshot(remote []Comment) {
	snap := make([]Comment, 0, len(remote))
	ids := make(map[string]struct{}, len(remote))
	for _, cm := range remote {
		cm = cm.clone()
		cm.Pending = false
		snap = append(snap, cm)
		ids[cm.ID] = struct{}{}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.snapshot = snap
	c.stale = false

	c.retireLocked()
	for pendingID, remoteID := range c.claims {
		if _, ok := c.pending.Get(pendingID); ok {
			continue
		}
		if _, ok := ids[remoteID]; !ok {
			delete(c.claims, pendingID)
		}
	}

	for id := range c.hidden {
		if _, ok := ids[id]; !ok {
			delete(c.hidden, id)
		}
	}
	for _, cm := range snap {
		for userID, intent := range c.reactions[cm.ID] {
			if cm.LikedByUser(userID) == intent.liked {
				c.dropIntentLocked(cm.ID, userID)
			}
		}
	}
	for commentID := range c.reactions {
		if _, ok := ids[commentID]; !ok {
			delete(c.reactions, commentID)
		}
	}

	ev := c.eventLocked(EventViewChanged)
	c.mu.Unlock()

	c.log.Debug().Int("comments", len(snap)).Uint64("version", ev.Version).Msg("Snapshot applied")
	c.emit(ev)
}

// FeedFailed marks the view stale; the last snapshot stays in use
func (c *Controller) FeedFailed(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stale = true
	ev := c.eventLocked(EventStale)
	c.mu.Unlock()

	ev.Err = err
	if err != nil && !errors.Is(err, ErrSubscription) {
		ev.Err = fmt.Errorf("%w: %w", ErrSubscription, err)
	}
	c.log.Warn().Err(err).Msg("Comment feed unavailable, showing last snapshot")
	c.emit(ev)
}

func (c *Controller) emit(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}

func (c *Controller) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Writes outlive the caller's context: there is no cancellation, only rollback.
	ctx = context.WithoutCancel(ctx)
	if c.writeTimeout > 0 {
		return context.WithTimeout(ctx, c.writeTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) eventLocked(kind EventKind) Event {
	c.version++
	return Event{
		Kind:    kind,
		Version: c.version,
		View:    c.viewLocked(),
		Stale:   c.stale,
	}
}

func (c *Controller) viewLocked() []Comment {
	return c.reconciler.ReconcileClaimed(c.visibleSnapshotLocked(), c.pending.List(), c.claims)
}

// visibleSnapshotLocked is the snapshot minus optimistic retractions, with
// optimistic reactions applied
func (c *Controller) visibleSnapshotLocked() []Comment {
	out := make([]Comment, 0, len(c.snapshot))
	for _, cm := range c.snapshot {
		if _, gone := c.hidden[cm.ID]; gone {
			continue
		}
		out = append(out, c.withIntentsLocked(cm))
	}
	return out
}

func (c *Controller) visibleLocked(commentID string) (Comment, bool) {
	if _, gone := c.hidden[commentID]; gone {
		return Comment{}, false
	}
	for _, cm := range c.snapshot {
		if cm.ID == commentID {
			return c.withIntentsLocked(cm), true
		}
	}
	return Comment{}, false
}

func (c *Controller) inSnapshotLocked(commentID string) bool {
	for _, cm := range c.snapshot {
		if cm.ID == commentID {
			return true
		}
	}
	return false
}

func (c *Controller) withIntentsLocked(cm Comment) Comment {
	intents := c.reactions[cm.ID]
	if len(intents) == 0 {
		return cm.clone()
	}
	for userID, intent := range intents {
		cm = cm.withReaction(userID, intent.liked)
	}
	return cm
}

func (c *Controller) dropIntentLocked(commentID, userID string) {
	delete(c.reactions[commentID], userID)
	if len(c.reactions[commentID]) == 0 {
		delete(c.reactions, commentID)
	}
}
