// Package webhook implements the event ingestion pipeline spec.md
// §4.6 describes: event classification, a stream-readiness preflight
// for newly added media, per-parent debouncers that batch and
// deduplicate events before fan-out, and the user-data/policy-update
// side channels. Grounded on the teacher's services/jobs webhook
// handler shape (classify, debounce, submit to the task queue)
// generalized from a single media-server event schema onto this
// system's Library Server event set.
package webhook

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"mediabridge/clients/library"
	"mediabridge/logging"
	"mediabridge/orchestrator"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

// EventType classifies an incoming Library Server webhook payload.
type EventType string

const (
	EventItemAdd          EventType = "item.add"
	EventLibraryNew       EventType = "library.new"
	EventLibraryDeleted   EventType = "library.deleted"
	EventMetadataUpdate   EventType = "metadata.update"
	EventImageUpdate      EventType = "image.update"
	EventUserPolicyUpdate EventType = "user.policyupdated"
	EventUserDataSave     EventType = "userdata.save"
	EventPlaybackStart    EventType = "playback.start"
	EventPlaybackStop     EventType = "playback.stop"
	EventPlaybackProgress EventType = "playback.progress"
)

// UserData carries the fields only userdata.save-class events set,
// spec.md §4.6 "User-data flow".
type UserData struct {
	IsFavorite            bool
	Played                bool
	PlaybackPositionTicks int64
	PlayedToCompletion    bool
}

// Event is the normalized shape every ingestion path builds before
// dispatch, regardless of the Library Server's own wire format.
type Event struct {
	Type        EventType
	ItemID      string
	SeriesID    string
	ItemName    string
	ItemType    string
	UserID      string
	UserData    *UserData
	SaveReason  string // "stop" | "progress" | "" for non-playback events
	Description string // Library Server's own free-text event description, carried onto the debounced update task
}

// Pipeline owns the new-item debouncer, per-item update debouncers,
// the stream-readiness semaphore, and the policy-update recursion
// marker table.
type Pipeline struct {
	orch    *orchestrator.Orchestrator
	lib     *library.Client
	userMS  repo.UserMediaStateRepository
	process ProcessFunc
	refresh RefreshFunc

	preflightSem chan struct{}

	mu           sync.Mutex
	newItemBatch map[string][]string // parent id -> new episode/item ids
	newItemTimer *time.Timer

	updateMu      sync.Mutex
	updateBatches map[string]*updateBatch

	policyMu      sync.Mutex
	policyMarkers map[string]time.Time
}

// ProcessFunc submits a full or light processing run for a library
// item, backed by processor.Processor.Process.
type ProcessFunc func(ctx context.Context, libraryItemID string, forceFullUpdate bool) error

// RefreshFunc re-scans a series' watchlist entry after a light sync,
// backed by derived/watchlist.Adder.
type RefreshFunc func(ctx context.Context, seriesMetadataID int64) error

const (
	newItemDebounce    = 5 * time.Second
	updateDebounce     = 15 * time.Second
	preflightConcurrent = 5
	preflightInterval   = 10 * time.Second
	preflightJitter     = 2 * time.Second
	preflightMaxTries   = 60
	policyMarkerTTL     = 30 * time.Second
)

func New(orch *orchestrator.Orchestrator, lib *library.Client, userMS repo.UserMediaStateRepository, process ProcessFunc, refresh RefreshFunc) *Pipeline {
	return &Pipeline{
		orch:          orch,
		lib:           lib,
		userMS:        userMS,
		process:       process,
		refresh:       refresh,
		preflightSem:  make(chan struct{}, preflightConcurrent),
		newItemBatch:  make(map[string][]string),
		updateBatches: make(map[string]*updateBatch),
		policyMarkers: make(map[string]time.Time),
	}
}

// Handle dispatches ev to the flow its Type selects, spec.md §4.6.
func (p *Pipeline) Handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventItemAdd, EventLibraryNew:
		p.handleNewItem(ctx, ev)
	case EventMetadataUpdate, EventImageUpdate:
		p.handleUpdate(ctx, ev)
	case EventUserPolicyUpdate:
		p.handlePolicyUpdate(ev)
	case EventUserDataSave, EventPlaybackStart, EventPlaybackStop, EventPlaybackProgress:
		p.handleUserData(ctx, ev)
	case EventLibraryDeleted:
		// No derived state to clean up synchronously; the next full
		// collection/watchlist sync naturally drops the stale reference.
	}
}

// parentOf resolves the id the debouncer keys on: an Episode folds
// into its Series, everything else keys on itself.
func parentOf(ev Event) string {
	if ev.ItemType == "Episode" && ev.SeriesID != "" {
		return ev.SeriesID
	}
	return ev.ItemID
}

// handleNewItem implements spec.md §4.6 "New-item flow" steps 1-3.
func (p *Pipeline) handleNewItem(ctx context.Context, ev Event) {
	if ev.ItemType == "Movie" || ev.ItemType == "Episode" {
		// Detach from the inbound request context: the preflight loop can
		// run for up to preflightMaxTries*preflightInterval, far past the
		// HTTP handler's own lifetime.
		go p.preflight(context.WithoutCancel(ctx), ev)
		return
	}
	p.enqueueNewItem(ev.ItemID, ev.ItemID)
}

// preflight polls an item's MediaSources until a Video stream reports
// a codec or width, bounded at preflightConcurrent in-flight checks
// and preflightMaxTries attempts, spec.md §4.6 step 1. On success or
// timeout it always enqueues — the new-item batch must not silently
// drop an item because its stream never stabilized.
func (p *Pipeline) preflight(ctx context.Context, ev Event) {
	p.preflightSem <- struct{}{}
	defer func() { <-p.preflightSem }()

	log := logging.FromContext(ctx)
	for attempt := 0; attempt < preflightMaxTries; attempt++ {
		item, err := p.lib.GetItemWithMediaSources(ctx, ev.ItemID)
		if err == nil && streamReady(item) {
			p.enqueueNewItem(parentOf(ev), ev.ItemID)
			return
		}
		jitter := time.Duration(rand.Int63n(int64(2*preflightJitter))) - preflightJitter
		select {
		case <-ctx.Done():
			log.Warn().Str("itemId", ev.ItemID).Msg("stream preflight aborted by context cancellation")
			return
		case <-time.After(preflightInterval + jitter):
		}
	}
	log.Warn().Str("itemId", ev.ItemID).Msg("stream preflight timed out, enqueuing anyway")
	p.enqueueNewItem(parentOf(ev), ev.ItemID)
}

func streamReady(item *library.Item) bool {
	for _, src := range item.MediaSources {
		for _, s := range src.MediaStreams {
			if s.Type == "Video" && (s.Codec != "" || s.Width > 0) {
				return true
			}
		}
	}
	return false
}

// enqueueNewItem restarts the shared 5s debounce timer and records
// childID under parentID's batch, spec.md §4.6 step 2.
func (p *Pipeline) enqueueNewItem(parentID, childID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.newItemBatch[parentID] = appendUnique(p.newItemBatch[parentID], childID)
	if p.newItemTimer != nil {
		p.newItemTimer.Stop()
	}
	p.newItemTimer = time.AfterFunc(newItemDebounce, p.flushNewItems)
}

func appendUnique(list []string, id string) []string {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

// flushNewItems implements spec.md §4.6 step 3: submit a full flow for
// an unseen parent, or a light sync plus cast/watchlist refresh for a
// parent already in the library.
func (p *Pipeline) flushNewItems() {
	p.mu.Lock()
	batch := p.newItemBatch
	p.newItemBatch = make(map[string][]string)
	p.newItemTimer = nil
	p.mu.Unlock()

	for parentID, childIDs := range batch {
		parentID, childIDs := parentID, childIDs
		p.orch.Submit(func(taskCtx context.Context) error {
			return p.processParentBatch(taskCtx, parentID, childIDs)
		}, "new-item-batch:"+parentID, "webhook")
	}
}

func (p *Pipeline) processParentBatch(ctx context.Context, parentID string, childIDs []string) error {
	item, err := p.lib.GetItem(ctx, parentID)
	seen := err == nil && itemLooksProcessed(item)

	if !seen {
		return p.process(ctx, parentID, true)
	}
	if err := p.process(ctx, parentID, false); err != nil {
		return err
	}
	for _, childID := range childIDs {
		if err := p.process(ctx, childID, false); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("episodeId", childID).Msg("lightweight cast apply failed for new episode")
		}
	}
	if item != nil && item.Type == "Series" {
		if metadataID, ok := providerMetadataID(item); ok && p.refresh != nil {
			return p.refresh(ctx, metadataID)
		}
	}
	return nil
}

// itemLooksProcessed is a conservative "already known" check: a prior
// processing pass always attaches at least one cast credit.
func itemLooksProcessed(item *library.Item) bool {
	return item != nil && len(item.People) > 0
}

func providerMetadataID(item *library.Item) (int64, bool) {
	id, ok := item.ProviderIDs["Tmdb"]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

// imageUpdateCoalescedDescription replaces an individual image.update
// event's own description once a second update event for the same
// parent folds into its still-pending debounce window, spec.md §4.6
// "Image updates downgrade their carried description to a generic
// ... when coalesced".
const imageUpdateCoalescedDescription = "Multiple image updates detected"

// updateBatch is one parent's pending debounced update task: the timer
// that fires it and the description that will be attached to it.
type updateBatch struct {
	timer       *time.Timer
	description string
}

// handleUpdate implements spec.md §4.6 "Update flows": a per-parent
// 15s debouncer, restarted (not merely extended) on every event so
// only the latest fires. An image.update event that lands while an
// earlier update for the same parent is still pending downgrades the
// batch's description to a generic one, since the description it
// carries no longer describes the whole coalesced window.
func (p *Pipeline) handleUpdate(ctx context.Context, ev Event) {
	parentID := parentOf(ev)

	p.updateMu.Lock()
	existing, hadPending := p.updateBatches[parentID]
	if hadPending {
		existing.timer.Stop()
	}
	batch := &updateBatch{description: nextUpdateDescription(hadPending, ev)}
	batch.timer = time.AfterFunc(updateDebounce, func() {
		p.updateMu.Lock()
		delete(p.updateBatches, parentID)
		p.updateMu.Unlock()
		p.orch.Submit(func(taskCtx context.Context) error {
			return p.process(taskCtx, parentID, false)
		}, updateTaskLabel(parentID, batch.description), "webhook")
	})
	p.updateBatches[parentID] = batch
	p.updateMu.Unlock()
}

// nextUpdateDescription decides the description a freshly (re)started
// update batch carries: an image.update event that arrives while an
// earlier update for the same parent is still pending downgrades to
// the generic coalesced description, since no single event's
// description still describes the whole window; anything else just
// carries its own event description through.
func nextUpdateDescription(hadPending bool, ev Event) string {
	if hadPending && ev.Type == EventImageUpdate {
		return imageUpdateCoalescedDescription
	}
	return ev.Description
}

// updateTaskLabel builds the orchestrator's displayed task name,
// carrying the batch's final description for the admin status view
// when the Library Server supplied one.
func updateTaskLabel(parentID, description string) string {
	if description == "" {
		return "metadata-sync:" + parentID
	}
	return "metadata-sync:" + parentID + " (" + description + ")"
}

// handleUserData implements spec.md §4.6 "User-data flow": normalize
// Episode ids to their owning series, synthesize last_played_date, and
// apply the stop/PlayedToCompletion rule.
func (p *Pipeline) handleUserData(ctx context.Context, ev Event) {
	if ev.UserData == nil || ev.UserID == "" {
		return
	}
	itemID := ev.ItemID
	if ev.ItemType == "Episode" && ev.SeriesID != "" {
		itemID = ev.SeriesID
	}

	state, err := p.userMS.Find(ctx, ev.UserID, itemID)
	if err != nil {
		state = &models.UserMediaState{UserID: ev.UserID, LibraryItemID: itemID}
	}

	state.IsFavorite = ev.UserData.IsFavorite
	state.IsPlayed = ev.UserData.Played
	state.PlaybackPositionTicks = ev.UserData.PlaybackPositionTicks

	now := time.Now()
	if ev.SaveReason == "stop" && ev.UserData.PlayedToCompletion {
		state.IsPlayed = true
		state.PlaybackPositionTicks = 0
	}
	state.LastPlayedAt = &now

	if err := p.userMS.Save(ctx, state); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("userId", ev.UserID).Str("itemId", itemID).Msg("saving user media state failed")
	}
}

// MarkPolicyPush stamps a short-lived recursion-suppression marker for
// userID, spec.md §4.6 "Policy-update recursion suppression" — called
// by the templates service immediately after it force-pushes a policy.
func (p *Pipeline) MarkPolicyPush(userID string) {
	p.policyMu.Lock()
	defer p.policyMu.Unlock()
	p.policyMarkers[userID] = time.Now().Add(policyMarkerTTL)
}

// handlePolicyUpdate discards a single immediately-following
// user.policyupdated event for a marked user.
func (p *Pipeline) handlePolicyUpdate(ev Event) {
	p.policyMu.Lock()
	defer p.policyMu.Unlock()
	expiry, marked := p.policyMarkers[ev.UserID]
	if marked {
		delete(p.policyMarkers, ev.UserID)
		if time.Now().Before(expiry) {
			return // single-shot discard
		}
	}
	// Not marked (or marker expired): a genuine external policy change.
	// Nothing downstream currently reacts to it beyond the suppression
	// check itself.
}
