package domain

// SearchContext accumulates state for a single Traversal Core walk
// (spec.md §4.3): the set of activities being searched for (§3: only
// Downhill and Nordic drive clustering), the buffer distance to use for
// nearby (non-containing) matches, whether the walk is confined to a
// single fixed search area, and the ordered set of keys already visited
// so the walk never revisits an object or loops forever.
type SearchType string

const (
	SearchContains   SearchType = "contains"
	SearchIntersects SearchType = "intersects"
)

type SearchContext struct {
	Activities                     []Activity
	SearchType                     SearchType
	BufferKm                       float64
	IsFixedSearchArea              bool
	FixedSearchAreaKey             string
	ExcludeObjectsAlreadyInSkiArea bool
	visited                        map[string]struct{}
	visitedOrder                   []string
}

// NewSearchContext builds a walk context. A nil/empty activities set
// means the walk is activity-agnostic (used by phase3's containment
// search, which assigns membership regardless of activity); a non-empty
// set restricts expansion to objects that share at least one activity
// with it, per spec.md §4.3's "filter ctx.activities down to those present
// on object.activities."
func NewSearchContext(activities []Activity, searchType SearchType, bufferKm float64) *SearchContext {
	return &SearchContext{
		Activities: activities,
		SearchType: searchType,
		BufferKm:   bufferKm,
		visited:    make(map[string]struct{}),
	}
}

func (sc *SearchContext) MarkVisited(key string) {
	if _, ok := sc.visited[key]; ok {
		return
	}
	sc.visited[key] = struct{}{}
	sc.visitedOrder = append(sc.visitedOrder, key)
}

func (sc *SearchContext) Visited(key string) bool {
	_, ok := sc.visited[key]
	return ok
}

// VisitedInOrder returns the keys visited so far, in the order they were
// first marked.
func (sc *SearchContext) VisitedInOrder() []string {
	out := make([]string, len(sc.visitedOrder))
	copy(out, sc.visitedOrder)
	return out
}
