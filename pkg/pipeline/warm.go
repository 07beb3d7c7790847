package pipeline

import (
	"context"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/cache"
	"golang.org/x/sync/errgroup"
)

// WarmResult reports the resolution of one requested variant.
type WarmResult struct {
	// Index is the position of the variant in the request.
	Index int

	// Spec is the canonical spec, empty when the parameters were invalid.
	Spec   string
	Key    cache.Key
	Status Status
	Bytes  int
	Err    error
}

// Warm resolves several variants of one asset, for example every width of a
// srcset, with at most Config.WarmConcurrency derivations in parallel. A
// failing variant does not stop the others. Results keep the request order.
func (p *Pipeline) Warm(ctx context.Context, id string, variants []map[string][]string) []WarmResult {
	results := make([]WarmResult, len(variants))

	var g errgroup.Group
	g.SetLimit(p.config.WarmConcurrency)

	for i, params := range variants {
		results[i].Index = i

		spec, err := p.parser.Parse(params)
		if err != nil {
			results[i].Err = p.fail(time.Now(), invalidSpec(id, err))
			continue
		}
		results[i].Spec = spec.Canonical()

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			res, err := p.resolve(ctx, id, spec)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Key = res.Key
			results[i].Status = res.Status
			results[i].Bytes = len(res.Data)
			return nil
		})
	}
	_ = g.Wait()

	warmed := 0
	for _, r := range results {
		if r.Err == nil {
			warmed++
		}
	}
	p.logger.Info().
		Str("asset_id", id).
		Int("variants", len(variants)).
		Int("warmed", warmed).
		Msg("Warmed variants")

	return results
}
