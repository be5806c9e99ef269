package identity

import "strings"

// SelectRole implements spec.md §4.1 "Role selection": merges a local
// role with a cultural-provider candidate role by priority. Grounded
// on original_source/actor_utils.go's select_best_role, adapted to the
// four-rule priority spec.md states explicitly.
func SelectRole(local, candidate string) string {
	local = strings.TrimSpace(local)
	candidate = strings.TrimSpace(candidate)

	candidateCJK := ContainsCJK(candidate) && !IsPlaceholder(candidate)
	localCJK := ContainsCJK(local) && !IsPlaceholder(local)

	// 1. Candidate contains CJK and is not a placeholder -> candidate.
	if candidateCJK {
		return candidate
	}
	// 2. Local contains CJK and is not a placeholder, candidate does not -> local.
	if localCJK {
		return local
	}
	// 3. First non-placeholder wins, candidate preferred.
	if candidate != "" && !IsPlaceholder(candidate) {
		return candidate
	}
	if local != "" && !IsPlaceholder(local) {
		return local
	}
	// 4. First non-empty wins, candidate preferred.
	if candidate != "" {
		return candidate
	}
	if local != "" {
		return local
	}
	return ""
}
