package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"mediabridge/apperrors"
	"mediabridge/clients/library"
	"mediabridge/logging"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

const fetchChunkSize = 200

// handleViews answers GET /Users/{uid}/Views by combining the user's
// native views with one synthetic view per active, visible custom
// collection, spec.md §4.8 behavior 1.
func (h *Handler) handleViews(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	native, err := h.library.GetUserViews(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(h.cfg.NativeViewWhitelist) > 0 {
		native = filterNativeViews(native, h.cfg.NativeViewWhitelist)
	}

	colls, err := h.collections.All(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("proxy: listing custom collections for views failed")
		colls = nil
	}

	var synthetic []map[string]any
	for _, c := range colls {
		if c.Status != "active" || !c.IsVisibleTo(userID) {
			continue
		}
		synthetic = append(synthetic, syntheticView(c))
	}

	nativeMaps := make([]map[string]any, 0, len(native))
	for _, v := range native {
		nativeMaps = append(nativeMaps, map[string]any{"Id": v.ID, "Name": v.Name})
	}

	var merged []map[string]any
	if h.cfg.NativeViewsMergeOrder == "before" {
		merged = append(append(merged, nativeMaps...), synthetic...)
	} else {
		merged = append(append(merged, synthetic...), nativeMaps...)
	}

	writeJSON(w, map[string]any{"Items": merged, "TotalRecordCount": len(merged)})
}

func filterNativeViews(views []library.View, whitelist []string) []library.View {
	allowed := make(map[string]bool, len(whitelist))
	for _, id := range whitelist {
		allowed[id] = true
	}
	out := views[:0]
	for _, v := range views {
		if allowed[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

func syntheticView(c models.CustomCollection) map[string]any {
	return map[string]any{
		"Id":             c.ToMimickedID(),
		"Name":           c.Name,
		"CollectionType": collectionViewType(c.ItemTypes.Data()),
		"Type":           "CollectionFolder",
		"IsFolder":       true,
		"ImageTags": map[string]any{
			"Primary": fmt.Sprintf("%d_%d", c.ID, time.Now().Unix()),
		},
	}
}

func collectionViewType(itemTypes []models.ItemType) string {
	var hasMovie, hasSeries bool
	for _, t := range itemTypes {
		switch t {
		case models.ItemTypeMovie:
			hasMovie = true
		case models.ItemTypeSeries, models.ItemTypeSeason, models.ItemTypeEpisode:
			hasSeries = true
		}
	}
	switch {
	case hasMovie && !hasSeries:
		return "movies"
	case hasSeries && !hasMovie:
		return "tvshows"
	default:
		return "mixed"
	}
}

// handleItemDetails answers GET /Users/{uid}/Items/{mimicked_id}: a
// synthesized description of the synthetic view itself, spec.md §4.8
// behavior 2.
func (h *Handler) handleItemDetails(w http.ResponseWriter, r *http.Request, userID, mimickedID string) {
	ctx := r.Context()
	dbID, ok := models.FromMimickedID(mimickedID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	c, err := h.collections.Find(ctx, dbID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.IsVisibleTo(userID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, syntheticView(*c))
}

// handleImagePrimary answers GET /Items/{mimicked_id}/Images/Primary by
// serving the cover art the collections engine generated to disk,
// spec.md §4.8 behavior 3 ("the proxy forwards the image request to
// that real ID" — here, to the file the cover generator wrote under
// that real collection ID, rather than a second network hop).
func (h *Handler) handleImagePrimary(w http.ResponseWriter, r *http.Request, mimickedID string) {
	dbID, ok := models.FromMimickedID(mimickedID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if h.cfg.CoverDir == "" {
		http.NotFound(w, r)
		return
	}
	path := fmt.Sprintf("%s/%d.jpg", h.cfg.CoverDir, dbID)
	http.ServeFile(w, r, path)
}

// handleParentItems answers GET /Users/{uid}/Items?ParentId={mimicked_id}
// by resolving the collection's content, filtering by effective
// permissions, paginating, and fetching full item detail, spec.md §4.8
// behavior 4.
func (h *Handler) handleParentItems(w http.ResponseWriter, r *http.Request, userID, mimickedID string) {
	ctx := withoutCancelCopy(r.Context())
	log := logging.FromContext(ctx)

	dbID, ok := models.FromMimickedID(mimickedID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	c, err := h.collections.Find(ctx, dbID)
	if err != nil {
		writeError(w, err)
		return
	}
	if c.Status != "active" || !c.IsVisibleTo(userID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	sortBy := q.Get("SortBy")
	sortOrder := q.Get("SortOrder")
	startIndex, _ := strconv.Atoi(q.Get("StartIndex"))
	limit, _ := strconv.Atoi(q.Get("Limit"))
	fields := q.Get("Fields")

	entries, err := h.resolveEntries(ctx, c, userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	sortEntries(entries, sortBy, sortOrder)

	policy, err := h.fetchPolicy(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("proxy: fetching policy failed, denying synthetic page")
		writeJSON(w, map[string]any{"Items": []any{}, "TotalRecordCount": 0})
		return
	}

	pairs := make([]repo.MetadataKey, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, repo.MetadataKey{MetadataID: e.MetadataID, ItemType: e.ItemType})
	}
	visible, err := h.media.FilterVisible(ctx, pairs, policy)
	if err != nil {
		writeError(w, err)
		return
	}
	visibleSet := make(map[string]bool, len(visible))
	for _, row := range visible {
		visibleSet[entryKey(row.MetadataID, row.ItemType)] = true
	}

	var libraryIDs []string
	for _, e := range entries {
		if !visibleSet[entryKey(e.MetadataID, e.ItemType)] {
			continue
		}
		if e.LibraryItemID != nil && *e.LibraryItemID != "" {
			libraryIDs = append(libraryIDs, *e.LibraryItemID)
		}
	}

	total := len(libraryIDs)
	page := paginate(libraryIDs, startIndex, limit)

	items, err := h.fetchItemsChunked(ctx, userID, page, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"Items": items, "TotalRecordCount": total})
}

func entryKey(metadataID int64, itemType models.ItemType) string {
	return fmt.Sprintf("%d:%s", metadataID, itemType)
}

// resolveEntries computes a collection's content set in the order its
// type's engine produces it: filter collections evaluate rules live,
// list/ai_recommendation_global read the precomputed entries, and
// ai_recommendation computes a per-user set on the spot.
func (h *Handler) resolveEntries(ctx context.Context, c *models.CustomCollection, userID string, limit int) ([]models.GeneratedMediaEntry, error) {
	switch c.Type {
	case models.CollectionTypeFilter:
		return h.resolveFilterEntries(ctx, c)
	case models.CollectionTypeAIRecommendation:
		// Per-user recommendation history is not yet wired into the
		// proxy (it lives on repo.UserMediaStateRepository, not passed
		// to Handler today); recommend cold, ranking candidates without
		// a watch-history signal until that plumbing lands.
		rows, err := h.engine.RecommendForUser(ctx, nil, c.ItemTypes.Data(), limitOrDefault(limit))
		if err != nil {
			return nil, err
		}
		return toEntries(rows), nil
	default:
		return c.GeneratedMediaInfo.Data(), nil
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func toEntries(rows []models.MediaMetadata) []models.GeneratedMediaEntry {
	out := make([]models.GeneratedMediaEntry, 0, len(rows))
	for _, row := range rows {
		var libID *string
		if ids := row.LibraryItemIDs.Data(); len(ids) > 0 {
			id := ids[0]
			libID = &id
		}
		out = append(out, models.GeneratedMediaEntry{
			MetadataID:    row.MetadataID,
			ItemType:      row.ItemType,
			LibraryItemID: libID,
		})
	}
	return out
}

func (h *Handler) resolveFilterEntries(ctx context.Context, c *models.CustomCollection) ([]models.GeneratedMediaEntry, error) {
	var def models.FilterDefinition
	if len(c.Definition) > 0 {
		if err := json.Unmarshal(c.Definition, &def); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "decoding filter definition", err)
		}
	}
	evaluator, err := h.engine.Evaluator(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := h.media.All(ctx, c.ItemTypes.Data())
	if err != nil {
		return nil, err
	}
	var out []models.GeneratedMediaEntry
	for _, row := range rows {
		if !row.InLibrary || !evaluator.Matches(row, def) {
			continue
		}
		out = append(out, toEntries([]models.MediaMetadata{row})...)
	}
	return out, nil
}

func sortEntries(entries []models.GeneratedMediaEntry, sortBy, sortOrder string) {
	if sortBy == "" {
		return
	}
	desc := sortOrder == "Descending"
	sort.SliceStable(entries, func(i, j int) bool {
		less := entries[i].MetadataID < entries[j].MetadataID
		if desc {
			return !less
		}
		return less
	})
}

func paginate(ids []string, startIndex, limit int) []string {
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(ids) {
		return nil
	}
	end := len(ids)
	if limit > 0 && startIndex+limit < end {
		end = startIndex + limit
	}
	return ids[startIndex:end]
}

// fetchItemsChunked fetches full item detail for ids in batches of up
// to 200 under a GET, spec.md §4.8 behavior 4, preserving the order ids
// arrives in regardless of what order the Library Server answers in.
func (h *Handler) fetchItemsChunked(ctx context.Context, userID string, ids []string, fields string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[string]map[string]any, len(ids))
	for start := 0; start < len(ids); start += fetchChunkSize {
		end := start + fetchChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		items, _, err := h.library.FetchItemsRaw(ctx, userID, chunk, fields, "", "", 0, 0)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if id, ok := item["Id"].(string); ok {
				byID[id] = item
			}
		}
	}
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (h *Handler) fetchPolicy(ctx context.Context, userID string) (repo.PermissionPolicy, error) {
	raw, err := h.library.GetUserPolicy(ctx, userID)
	if err != nil {
		return repo.PermissionPolicy{}, err
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return repo.PermissionPolicy{}, apperrors.Wrap(apperrors.KindInternal, "encoding policy", err)
	}
	var decoded struct {
		EnableAllFolders   bool     `json:"EnableAllFolders"`
		EnabledFolders     []string `json:"EnabledFolders"`
		ExcludedSubFolders []string `json:"ExcludedSubFolders"`
		BlockedTags        []string `json:"BlockedTags"`
		MaxParentalRating  *int     `json:"MaxParentalRating"`
		BlockUnratedItems  bool     `json:"BlockUnratedItems"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return repo.PermissionPolicy{}, apperrors.Wrap(apperrors.KindInternal, "decoding policy", err)
	}
	return repo.PermissionPolicy{
		EnableAllFolders:   decoded.EnableAllFolders,
		EnabledFolders:     decoded.EnabledFolders,
		ExcludedSubFolders: decoded.ExcludedSubFolders,
		BlockedTags:        decoded.BlockedTags,
		MaxParentalRating:  decoded.MaxParentalRating,
		BlockUnratedItems:  decoded.BlockUnratedItems,
	}, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		http.Error(w, ae.Message, ae.HTTPStatus())
		return
	}
	http.Error(w, err.Error(), http.StatusBadGateway)
}
