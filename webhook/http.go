package webhook

import (
	"encoding/json"
	"net/http"

	"mediabridge/logging"
	"mediabridge/metrics"
)

// wirePayload is the Library Server's own webhook JSON shape, spec.md
// §4.6 "Webhook inbound": top-level Event, Item, User, UserData, and
// Description, which only the update-debounce path reads; an optional
// PlaybackInfo field carries nothing the handled event types need.
type wirePayload struct {
	Event       string `json:"Event"`
	Description string `json:"Description"`
	Item        struct {
		ID       string `json:"Id"`
		Name     string `json:"Name"`
		Type     string `json:"Type"`
		SeriesID string `json:"SeriesId"`
	} `json:"Item"`
	User struct {
		ID string `json:"Id"`
	} `json:"User"`
	UserData struct {
		IsFavorite            bool  `json:"IsFavorite"`
		Played                bool  `json:"Played"`
		PlaybackPositionTicks int64 `json:"PlaybackPositionTicks"`
		PlayedToCompletion    bool  `json:"PlayedToCompletion"`
	} `json:"UserData"`
}

// saveReasonOf recovers the "stop" vs "progress" distinction the
// Library Server folds into its own Event name rather than a separate
// field, e.g. "PlaybackStop" / "PlaybackProgress".
func saveReasonOf(wireEvent string) string {
	switch wireEvent {
	case "PlaybackStop":
		return "stop"
	case "PlaybackProgress":
		return "progress"
	default:
		return ""
	}
}

var wireEventTypes = map[string]EventType{
	"ItemAdded":          EventItemAdd,
	"LibraryNewContent":  EventLibraryNew,
	"LibraryDeleted":     EventLibraryDeleted,
	"ItemUpdated":        EventMetadataUpdate,
	"ImageUpdated":       EventImageUpdate,
	"UserPolicyUpdated":  EventUserPolicyUpdate,
	"UserDataSaved":      EventUserDataSave,
	"PlaybackStart":      EventPlaybackStart,
	"PlaybackStop":       EventPlaybackStop,
	"PlaybackProgress":   EventPlaybackProgress,
}

// ServeHTTP decodes one Library Server webhook POST and dispatches it
// to Handle. The Library Server does not wait for processing to
// finish, so the event is handed off before responding: Handle itself
// only ever blocks on in-memory debounce bookkeeping, never on a
// downstream call, so this stays fast without a further goroutine hop.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var payload wirePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("webhook: malformed payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	metrics.RecordWebhookEvent(payload.Event)

	eventType, ok := wireEventTypes[payload.Event]
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	ev := Event{
		Type:        eventType,
		ItemID:      payload.Item.ID,
		SeriesID:    payload.Item.SeriesID,
		ItemName:    payload.Item.Name,
		ItemType:    payload.Item.Type,
		UserID:      payload.User.ID,
		Description: payload.Description,
		SaveReason:  saveReasonOf(payload.Event),
	}
	if eventType == EventUserDataSave || eventType == EventPlaybackStart ||
		eventType == EventPlaybackStop || eventType == EventPlaybackProgress {
		ev.UserData = &UserData{
			IsFavorite:            payload.UserData.IsFavorite,
			Played:                payload.UserData.Played,
			PlaybackPositionTicks: payload.UserData.PlaybackPositionTicks,
			PlayedToCompletion:    payload.UserData.PlayedToCompletion,
		}
	}

	p.Handle(r.Context(), ev)
	w.WriteHeader(http.StatusOK)
}
