package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// stubStrategy returns a canned candidate or error
type stubStrategy struct {
	kind      types.SourceKind
	candidate *types.DiscoveryCandidate
	err       error
	calls     int
}

func (s *stubStrategy) Kind() types.SourceKind { return s.kind }

func (s *stubStrategy) Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candidate, nil
}

func TestResolverTierOrderBeatsConfidence(t *testing.T) {
	// Tier 1 answers with 0.9, tier 2 would answer with 0.95. Tier 1 must
	// win because priority is positional, not score-based.
	tier1 := &stubStrategy{
		kind:      types.SourceCuratedManifest,
		candidate: &types.DiscoveryCandidate{URL: "https://curated.example.com", Confidence: 0.9},
	}
	tier2 := &stubStrategy{
		kind:      types.SourcePackageRegistry,
		candidate: &types.DiscoveryCandidate{URL: "https://registry.example.com", Confidence: 0.95},
	}

	resolver := NewResolver(zerolog.Nop(), tier1, tier2)
	got, err := resolver.Resolve(context.Background(), types.NewLibraryIdentity("mylib", ""))
	require.NoError(t, err)

	assert.Equal(t, "https://curated.example.com", got.URL)
	assert.Equal(t, types.SourceCuratedManifest, got.SourceKind)
	assert.Equal(t, 0, tier2.calls, "later tier must not be consulted")
}

func TestResolverFallsThroughBelowFloor(t *testing.T) {
	tier1 := &stubStrategy{
		kind:      types.SourceCuratedManifest,
		candidate: &types.DiscoveryCandidate{URL: "https://weak.example.com", Confidence: 0.1},
	}
	tier2 := &stubStrategy{
		kind:      types.SourcePackageRegistry,
		candidate: &types.DiscoveryCandidate{URL: "https://good.example.com", Confidence: 0.7},
	}

	resolver := NewResolver(zerolog.Nop(), tier1, tier2)
	got, err := resolver.Resolve(context.Background(), types.NewLibraryIdentity("mylib", ""))
	require.NoError(t, err)

	assert.Equal(t, "https://good.example.com", got.URL)
	assert.Equal(t, types.SourcePackageRegistry, got.SourceKind)
}

func TestResolverSkipsFailingTier(t *testing.T) {
	tier1 := &stubStrategy{kind: types.SourceCuratedManifest, err: types.ErrNotFound}
	tier2 := &stubStrategy{
		kind:      types.SourcePackageRegistry,
		candidate: &types.DiscoveryCandidate{URL: "https://good.example.com", Confidence: 0.7},
	}

	resolver := NewResolver(zerolog.Nop(), tier1, tier2)
	got, err := resolver.Resolve(context.Background(), types.NewLibraryIdentity("mylib", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://good.example.com", got.URL)
}

func TestResolverAllTiersExhausted(t *testing.T) {
	tier1 := &stubStrategy{kind: types.SourceCuratedManifest, err: types.ErrNotFound}
	tier2 := &stubStrategy{kind: types.SourcePackageRegistry, err: errors.New("network down")}

	resolver := NewResolver(zerolog.Nop(), tier1, tier2)
	_, err := resolver.Resolve(context.Background(), types.NewLibraryIdentity("mylib", ""))
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Single pass: each tier consulted exactly once
	assert.Equal(t, 1, tier1.calls)
	assert.Equal(t, 1, tier2.calls)
}

func TestResolverEmptyIdentity(t *testing.T) {
	resolver := NewResolver(zerolog.Nop())
	_, err := resolver.Resolve(context.Background(), types.NewLibraryIdentity("", ""))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestVersionMarker(t *testing.T) {
	withVersion := VersionMarker("1.2.3", "https://example.com")
	assert.Contains(t, withVersion, "v:1.2.3")

	fromURL := VersionMarker("", "https://example.com")
	fromSameURL := VersionMarker("", "https://example.com")
	fromOtherURL := VersionMarker("", "https://other.com")

	assert.Equal(t, fromURL, fromSameURL, "marker must be deterministic")
	assert.NotEqual(t, fromURL, fromOtherURL)

	// Revision stamp invalidates markers across scoring upgrades
	assert.Contains(t, fromURL, "r1:")
}
