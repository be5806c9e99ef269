package identity

import "context"

// RawActor is one cast credit as reported by any provider, prior to
// identity resolution.
type RawActor struct {
	Name          string
	Role          string
	Order         int
	LibraryID     string
	MetadataID    *uint64
	IMDbID        string
	CulturalID    string
	CulturalURL   string
}

// Source tags which provider produced a RawActor, for logging and for
// the per-source priority rules in role selection and cast matching.
type Source string

const (
	SourceLibrary  Source = "library"
	SourceMetadata Source = "metadata"
	SourceCultural Source = "cultural"
)

// CastSource is the single capability every cast provider implements,
// replacing the source's ad hoc runtime dispatch across provider
// clients (spec.md "Dynamic dispatch / duck typing").
type CastSource interface {
	Source() Source
	FetchCast(ctx context.Context, mediaID string) ([]RawActor, error)
}
