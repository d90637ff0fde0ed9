package usecase

import (
	"github.com/russellporter/openskidata-processor/internal/domain"
)

// Merge implements C5 (spec.md §4.5): combines a primary ski area
// candidate with zero or more others from a different source into a
// single result. Field precedence: the primary's (OpenStreetMap's, when
// OSM is present in the group) non-empty fields win, except Websites and
// Sources, which always union across every source regardless of which
// side is non-empty (the §9 Open Question resolution recorded in
// DESIGN.md). The merged area is "generated" only if every input was.
func Merge(primary *domain.SkiArea, others []*domain.SkiArea) *domain.SkiArea {
	result := *primary
	result.Websites = unionWebsites(primary, others)
	result.Sources = unionSources(primary, others)

	generated := primary.Flags.IsGenerated
	for _, other := range others {
		if result.Name == "" && other.Name != "" {
			result.Name = other.Name
		}
		if result.Status == "" && other.Status != "" {
			result.Status = other.Status
		}
		if result.RunConventions == "" && other.RunConventions != "" {
			result.RunConventions = other.RunConventions
		}
		result.Activities = unionActivities(result.Activities, other.Activities)
		generated = generated && other.Flags.IsGenerated
	}
	result.Flags.IsGenerated = generated

	return &result
}

func unionWebsites(primary *domain.SkiArea, others []*domain.SkiArea) []string {
	seen := map[string]bool{}
	var out []string
	add := func(sites []string) {
		for _, s := range sites {
			if s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	add(primary.Websites)
	for _, o := range others {
		add(o.Websites)
	}
	return out
}

// unionSources returns the multiset union of source keys, deduplicated by
// key (a SkiArea's key already encodes its source and kind+id). A SkiArea
// with no recorded Sources of its own (one that has never been through a
// merge) contributes its own Key.
func unionSources(primary *domain.SkiArea, others []*domain.SkiArea) []string {
	seen := map[string]bool{}
	var out []string
	add := func(sa *domain.SkiArea) {
		srcs := sa.Sources
		if len(srcs) == 0 {
			srcs = []string{sa.Key}
		}
		for _, s := range srcs {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	add(primary)
	for _, o := range others {
		add(o)
	}
	return out
}

func unionActivities(a, b []domain.Activity) []domain.Activity {
	seen := map[domain.Activity]bool{}
	var out []domain.Activity
	add := func(acts []domain.Activity) {
		for _, act := range acts {
			if !seen[act] {
				seen[act] = true
				out = append(out, act)
			}
		}
	}
	add(a)
	add(b)
	return out
}
