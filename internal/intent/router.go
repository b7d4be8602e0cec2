package intent

import (
	"sort"
	"sync"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// DefaultTopN is the number of candidates Detect keeps when none is configured.
const DefaultTopN = 5

// Router aggregates candidates from all registered domains.
// Registration order is the tie-breaker for equal confidence.
type Router struct {
	mu      sync.RWMutex
	domains []Domain
	byName  map[string]Domain
	topN    int
}

// NewRouter creates an empty router. A non-positive topN selects DefaultTopN.
func NewRouter(topN int) *Router {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Router{
		byName: make(map[string]Domain),
		topN:   topN,
	}
}

// Register appends a domain. Returns ErrDuplicateDomain if the name is taken.
func (r *Router) Register(d Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name()]; exists {
		return domain.NewEngineError(domain.ErrDuplicateDomain.Code, "domain already registered: "+d.Name())
	}
	r.domains = append(r.domains, d)
	r.byName[d.Name()] = d
	return nil
}

// Detect returns up to TopN ranked candidates for text. It is deterministic:
// the same text and actor always produce the same list.
func (r *Router) Detect(text string, actor domain.ActorContext) []domain.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	var all []candidate
	for i, d := range r.domains {
		if !d.Allows(actor.Role) {
			continue
		}
		all = append(all, match(d, i, normalized)...)
	}

	all = dedupe(all)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.intent.Confidence != b.intent.Confidence {
			return a.intent.Confidence > b.intent.Confidence
		}
		if a.domainIdx != b.domainIdx {
			return a.domainIdx < b.domainIdx
		}
		return a.ruleIdx < b.ruleIdx
	})

	if len(all) > r.topN {
		all = all[:r.topN]
	}
	out := make([]domain.Intent, len(all))
	for i, c := range all {
		out[i] = c.intent
	}
	return out
}

// Top returns the acting intent, or false on a classification miss.
func (r *Router) Top(text string, actor domain.ActorContext) (domain.Intent, bool) {
	ranked := r.Detect(text, actor)
	if len(ranked) == 0 {
		return domain.Intent{}, false
	}
	return ranked[0], true
}

// dedupe keeps the highest-confidence candidate per (domain, name). On equal
// confidence the earlier rule wins.
func dedupe(cands []candidate) []candidate {
	type key struct{ domain, name string }
	best := make(map[key]int, len(cands))
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		k := key{c.intent.Domain, c.intent.Name}
		if idx, seen := best[k]; seen {
			if c.intent.Confidence > out[idx].intent.Confidence {
				out[idx] = c
			}
			continue
		}
		best[k] = len(out)
		out = append(out, c)
	}
	return out
}
