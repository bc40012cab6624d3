package killmail

import (
	"context"
	"time"

	"wandererkills/internal/zkb"
)

// Sink is how the pipeline hands a fully enriched killmail off to
// storage (spec.md §4.2 stage 9). Process returns a sink error to its
// caller together with the killmail; the poller logs and counts it and
// keeps polling.
type Sink func(ctx context.Context, km *Killmail) error

// Pipeline runs the full parse-enrich-store chain for one raw
// killmail (spec.md §4.2 stages 1-9).
type Pipeline struct {
	enricher *Enricher
	sink     Sink
}

// NewPipeline builds a Pipeline.
func NewPipeline(enricher *Enricher, sink Sink) *Pipeline {
	return &Pipeline{enricher: enricher, sink: sink}
}

// Process runs stages 1-9 on one raw killmail. A nil error with a nil
// *Killmail return means the cutoff-skip sentinel fired (stage 4): a
// benign, expected outcome, not a failure.
func (p *Pipeline) Process(ctx context.Context, raw zkb.RawKillmail, zkbMeta zkb.ZKBData, cutoff time.Time) (*Killmail, error) {
	normalized := normalize(raw)

	if err := validate(normalized); err != nil {
		return nil, err
	}

	killTime, err := parseTime(normalized)
	if err != nil {
		return nil, err
	}

	if err := checkCutoff(killTime, cutoff); err != nil {
		return nil, nil
	}

	km, err := buildSkeleton(normalized, killTime, zkbMeta)
	if err != nil {
		return nil, err
	}

	p.enricher.Enrich(ctx, km)

	if p.sink != nil {
		if err := p.sink(ctx, km); err != nil {
			return km, err
		}
	}

	return km, nil
}
