package pipeline

import (
	"context"

	"github.com/recapforge/recap/internal/clients"
)

// ClipMatcher refines a chapter's default video range by searching for
// a narration-aligned clip elsewhere in the source (spec §4.3-S12's
// optional clip-matching enrichment). Match returns ok=false when no
// candidate clears minConfidence, in which case the caller keeps the
// chapter's default range.
type ClipMatcher interface {
	Match(ctx context.Context, videoID, narrationText string, minConfidence float64) (start, end float64, ok bool, err error)
}

// vectorMatcher is the default ClipMatcher, backed by a
// clients.VectorStoreClient similarity search (spec §2 component 4).
type vectorMatcher struct {
	store clients.VectorStoreClient
}

// NewVectorMatcher builds a ClipMatcher over store.
func NewVectorMatcher(store clients.VectorStoreClient) ClipMatcher {
	return &vectorMatcher{store: store}
}

const clipMatchTopK = 3

// Match queries the vector store for the best candidate segment
// matching narrationText and accepts the top hit only if its score
// clears minConfidence (spec §4.3-S12: "accept the top match only if
// its confidence clears the configured threshold").
func (m *vectorMatcher) Match(ctx context.Context, videoID, narrationText string, minConfidence float64) (float64, float64, bool, error) {
	matches, err := m.store.Query(ctx, videoID, narrationText, clipMatchTopK)
	if err != nil {
		return 0, 0, false, err
	}
	if len(matches) == 0 {
		return 0, 0, false, nil
	}

	best := matches[0]
	for _, cand := range matches[1:] {
		if cand.Score > best.Score {
			best = cand
		}
	}
	if best.Score < minConfidence {
		return 0, 0, false, nil
	}
	return best.Start, best.End, true, nil
}
