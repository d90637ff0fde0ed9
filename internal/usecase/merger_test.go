package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/usecase"
)

func skiArea(key string, name string, status domain.Status, websites []string, activities []domain.Activity) *domain.SkiArea {
	return &domain.SkiArea{
		Object: domain.Object{
			Key:        key,
			Kind:       domain.KindSkiArea,
			Activities: activities,
		},
		Name:     name,
		Status:   status,
		Websites: websites,
	}
}

func TestMerge_PrimaryFieldsWinWhenNonEmpty(t *testing.T) {
	primary := skiArea("osm/1", "Primary Resort", domain.StatusOperating, nil, []domain.Activity{domain.ActivityDownhill})
	other := skiArea("skimap/1", "Other Name", domain.StatusDisused, nil, []domain.Activity{domain.ActivityNordic})

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.Equal(t, "Primary Resort", result.Name)
	assert.Equal(t, domain.StatusOperating, result.Status)
}

func TestMerge_OtherFieldsFillInWhenPrimaryEmpty(t *testing.T) {
	primary := skiArea("osm/1", "", "", nil, nil)
	other := skiArea("skimap/1", "Skimap Name", domain.StatusProposed, nil, nil)

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.Equal(t, "Skimap Name", result.Name)
	assert.Equal(t, domain.StatusProposed, result.Status)
}

func TestMerge_WebsitesAlwaysUnionRegardlessOfPrecedence(t *testing.T) {
	primary := skiArea("osm/1", "Primary Resort", domain.StatusOperating, []string{"https://primary.example"}, nil)
	other := skiArea("skimap/1", "Other Name", domain.StatusDisused, []string{"https://other.example", "https://primary.example"}, nil)

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.ElementsMatch(t, []string{"https://primary.example", "https://other.example"}, result.Websites)
}

func TestMerge_ActivitiesUnionAcrossSources(t *testing.T) {
	primary := skiArea("osm/1", "Primary", domain.StatusOperating, nil, []domain.Activity{domain.ActivityDownhill})
	other := skiArea("skimap/1", "Other", domain.StatusOperating, nil, []domain.Activity{domain.ActivityDownhill, domain.ActivityNordic})

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.ElementsMatch(t, []domain.Activity{domain.ActivityDownhill, domain.ActivityNordic}, result.Activities)
}

func TestMerge_NoOthersReturnsPrimaryUnchanged(t *testing.T) {
	primary := skiArea("osm/1", "Solo Resort", domain.StatusOperating, []string{"https://solo.example"}, []domain.Activity{domain.ActivityDownhill})

	result := usecase.Merge(primary, nil)

	assert.Equal(t, "Solo Resort", result.Name)
	assert.Equal(t, []string{"https://solo.example"}, result.Websites)
}

func TestMerge_MultipleOthersMergeInOrder(t *testing.T) {
	primary := skiArea("osm/1", "", domain.StatusOperating, nil, nil)
	first := skiArea("skimap/1", "First Fallback", "", nil, nil)
	second := skiArea("skimap/2", "Second Fallback", "", nil, nil)

	result := usecase.Merge(primary, []*domain.SkiArea{first, second})

	assert.Equal(t, "First Fallback", result.Name)
}

func TestMerge_GeneratedIsFalseWhenAnyInputIsNotGenerated(t *testing.T) {
	primary := skiArea("generated/1", "Generated Resort", domain.StatusOperating, nil, nil)
	primary.Flags.IsGenerated = true
	other := skiArea("osm/1", "OSM Resort", domain.StatusOperating, nil, nil)

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.False(t, result.Flags.IsGenerated)
}

func TestMerge_GeneratedIsTrueOnlyWhenEveryInputWasGenerated(t *testing.T) {
	primary := skiArea("generated/1", "Generated Resort", domain.StatusOperating, nil, nil)
	primary.Flags.IsGenerated = true
	other := skiArea("generated/2", "Other Generated", domain.StatusOperating, nil, nil)
	other.Flags.IsGenerated = true

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.True(t, result.Flags.IsGenerated)
}

func TestMerge_SourcesUnionsKeysDeduplicated(t *testing.T) {
	primary := skiArea("osm:skiArea:1", "OSM Resort", domain.StatusOperating, nil, nil)
	other := skiArea("skimap.org:skiArea:1", "Skimap Resort", domain.StatusOperating, nil, nil)

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.ElementsMatch(t, []string{"osm:skiArea:1", "skimap.org:skiArea:1"}, result.Sources)
}

func TestMerge_SourcesCarriesForwardPriorMergeHistoryDeduplicated(t *testing.T) {
	primary := skiArea("osm:skiArea:1", "OSM Resort", domain.StatusOperating, nil, nil)
	primary.Sources = []string{"osm:skiArea:1", "skimap.org:skiArea:9"}
	other := skiArea("skimap.org:skiArea:9", "Skimap Resort", domain.StatusOperating, nil, nil)

	result := usecase.Merge(primary, []*domain.SkiArea{other})

	assert.ElementsMatch(t, []string{"osm:skiArea:1", "skimap.org:skiArea:9"}, result.Sources)
}
