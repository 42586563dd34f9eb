package ledger

import (
	"time"

	"billcard/internal/models"
)

// Options configures an Engine.
type Options struct {
	Location       *time.Location
	ParseCacheSize int
	Fallback       FallbackWindow
}

// Engine bundles the date parser, range resolver and normalizer with their caches.
// Handlers share one Engine; each computation is otherwise a pure function of its inputs.
type Engine struct {
	parser     *DateParser
	resolver   *RangeResolver
	normalizer *Normalizer
}

// NewEngine builds an Engine with its own parse and window caches.
func NewEngine(opts Options) *Engine {
	parser := NewDateParser(opts.Location, NewParseCache(opts.ParseCacheSize))
	return &Engine{
		parser:     parser,
		resolver:   NewRangeResolver(parser, NewWindowCache(0), opts.Fallback),
		normalizer: NewNormalizer(parser),
	}
}

// Parser returns the engine's date parser.
func (e *Engine) Parser() *DateParser { return e.parser }

// Resolver returns the engine's range resolver.
func (e *Engine) Resolver() *RangeResolver { return e.resolver }

// Normalize shapes raw API records.
func (e *Engine) Normalize(raw []models.RawTransaction) NormalizeResult {
	return e.normalizer.Normalize(raw)
}

// ResolveWindow returns the explicit window when either boundary is given,
// otherwise the latest-month window. A nil range means "no filter".
func (e *Engine) ResolveWindow(txs []Transaction, start, end string) (*DateRange, error) {
	if start != "" || end != "" {
		r, err := e.resolver.ExplicitWindow(start, end)
		if err != nil {
			return nil, err
		}
		return &r, nil
	}
	if r, ok := e.resolver.LatestMonthWindow(txs); ok {
		return &r, nil
	}
	return nil, nil
}

// ListParts groups txs by part inside window, keeps groups with rows in the
// window and applies the search query to what remains.
func (e *Engine) ListParts(txs []Transaction, window *DateRange, search string) []GroupedPart {
	q := NewQuery(search)
	groups := GroupByPart(txs, window)
	out := make([]GroupedPart, 0, len(groups))
	for _, g := range groups {
		if window != nil && g.FilteredCount == 0 {
			continue
		}
		if !q.MatchGroup(e.parser, g) {
			continue
		}
		out = append(out, g)
	}
	return out
}
