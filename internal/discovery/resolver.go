package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// Revision is the discovery scoring revision. It is folded into every
// version marker so resolver-logic upgrades invalidate manifests built by
// older revisions.
const Revision = 1

// ConfidenceFloor is the minimum confidence a tier's candidate needs to be
// accepted. Below it the resolver falls through to the next tier.
const ConfidenceFloor = 0.3

// Strategy is one discovery tier. Returns types.ErrNotFound when the tier
// has no candidate for the identity; any candidate it does return carries a
// confidence in [0,1].
type Strategy interface {
	Kind() types.SourceKind
	Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error)
}

// Resolver runs strategies in strict priority order and stops at the first
// tier producing a candidate at or above the confidence floor. Tier order
// outranks raw confidence: a later tier never displaces an earlier
// acceptable one.
type Resolver struct {
	strategies []Strategy
	floor      float64
	log        zerolog.Logger
}

// NewResolver creates a resolver over an ordered strategy list
func NewResolver(log zerolog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: strategies,
		floor:      ConfidenceFloor,
		log:        log.With().Str("component", "discovery").Logger(),
	}
}

// Resolve finds the best documentation candidate for the identity. A single
// pass over the tiers per call; exhausting all tiers returns
// types.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}

	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrTimeout, err)
		}

		candidate, err := strategy.Resolve(ctx, identity)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				r.log.Debug().
					Str("library", identity.Key()).
					Str("tier", string(strategy.Kind())).
					Err(err).
					Msg("discovery tier failed")
			}
			continue
		}
		if candidate == nil || candidate.Confidence < r.floor {
			continue
		}

		candidate.SourceKind = strategy.Kind()
		if candidate.VersionMarker == "" {
			candidate.VersionMarker = VersionMarker("", candidate.URL)
		}
		r.log.Info().
			Str("library", identity.Key()).
			Str("tier", string(candidate.SourceKind)).
			Str("url", candidate.URL).
			Float64("confidence", candidate.Confidence).
			Msg("documentation source resolved")
		return candidate, nil
	}

	return nil, fmt.Errorf("%w: no documentation source for %q", types.ErrNotFound, identity.Key())
}

// VersionMarker derives the staleness marker for a discovered source: the
// registry version when one is known, otherwise a hash of the resolved URL,
// always prefixed with the scoring revision.
func VersionMarker(version, url string) string {
	if version != "" {
		return fmt.Sprintf("r%d:v:%s", Revision, version)
	}
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("r%d:u:%s", Revision, hex.EncodeToString(sum[:])[:16])
}
