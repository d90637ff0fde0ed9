package usecase

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

// FeatureIterator is supplied by the (out-of-scope) ingestion layer: it
// yields one GeoJSON feature at a time, ok=false once exhausted.
type FeatureIterator func() (feature *geojson.Feature, ok bool, err error)

const loaderBatchSize = 500

// Loader is the C2 component of spec.md §4.2. It classifies each input
// feature into a draft domain.Object and batches saves into the object
// store; malformed features are logged and skipped (LoaderError) rather
// than aborting the whole load.
type Loader struct {
	store  repository.ObjectStore
	logger *zap.Logger
}

func NewLoader(store repository.ObjectStore, logger *zap.Logger) *Loader {
	return &Loader{store: store, logger: logger}
}

func (l *Loader) LoadSkiAreas(ctx context.Context, source domain.Source, next FeatureIterator) (loaded, skipped int, err error) {
	return l.load(ctx, func(f *geojson.Feature) (*domain.Object, error) {
		return classifySkiArea(f, source)
	}, next)
}

func (l *Loader) LoadLifts(ctx context.Context, source domain.Source, next FeatureIterator) (loaded, skipped int, err error) {
	return l.load(ctx, func(f *geojson.Feature) (*domain.Object, error) {
		return classifyLift(f, source)
	}, next)
}

func (l *Loader) LoadRuns(ctx context.Context, source domain.Source, next FeatureIterator) (loaded, skipped int, err error) {
	return l.load(ctx, func(f *geojson.Feature) (*domain.Object, error) {
		return classifyRun(f, source)
	}, next)
}

func (l *Loader) load(ctx context.Context, classify func(*geojson.Feature) (*domain.Object, error), next FeatureIterator) (loaded, skipped int, err error) {
	batch := make([]*domain.Object, 0, loaderBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.store.SaveMany(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		feature, ok, readErr := next()
		if readErr != nil {
			loaderErr := apperrors.Loader("failed to read input feature", readErr)
			l.logger.Warn("skipping unreadable feature", zap.Error(loaderErr))
			skipped++
			if !ok {
				break
			}
			continue
		}
		if !ok {
			break
		}

		obj, classifyErr := classify(feature)
		if classifyErr != nil {
			l.logger.Warn("skipping feature that failed classification", zap.Error(classifyErr))
			skipped++
			continue
		}

		batch = append(batch, obj)
		loaded++
		if len(batch) >= loaderBatchSize {
			if err := flush(); err != nil {
				return loaded, skipped, err
			}
		}
	}

	if err := flush(); err != nil {
		return loaded, skipped, err
	}
	return loaded, skipped, nil
}

// classifySkiArea implements spec.md §4.2's SkiArea rule: the source is
// whatever the caller asserts for this whole stream (one source per
// file), isPolygon is derived from the geometry kind, and activities come
// straight from the input's own activities property (possibly empty; phase
// 1 fills in activities only for ski areas that already have members from
// a site relation, so a landuse=winter_sports polygon with no activity tag
// keeps an empty set). A feature with no
// geometry (an OSM site-relation import) gets the sentinel point so phase
// 8 can recognize it if augmentation never gives it a real one.
func classifySkiArea(f *geojson.Feature, source domain.Source) (*domain.Object, error) {
	name, _ := f.Properties["name"].(string)

	geom := f.Geometry
	if geom == nil {
		geom = orb.Point{sentinelLongitude, sentinelLatitude}
	}
	g := domain.NewGeometry(geom)

	return &domain.Object{
		Key:        featureKey(f, source, "skiArea"),
		Kind:       domain.KindSkiArea,
		Source:     source,
		Geometry:   g,
		Activities: propertyActivities(f, "activities"),
		Flags:      domain.Flags{IsPolygon: g.IsPolygonal()},
		Properties: map[string]interface{}{"name": name},
	}, nil
}

// classifyLift implements §4.2's Lift rule. The elevation-bearing copy of
// the geometry is retained separately from the flattened primary one (the
// store's geometry column and spatial predicates operate on the 2D form);
// here both point at the same orb.Geometry since the orb types this
// module uses don't themselves carry a Z coordinate to strip.
func classifyLift(f *geojson.Feature, source domain.Source) (*domain.Object, error) {
	if f.Geometry == nil {
		return nil, apperrors.Loader("lift feature has no geometry", nil)
	}
	liftType, _ := f.Properties["aerialway"].(string)
	if liftType == "" {
		liftType, _ = f.Properties["railway"].(string)
	}
	if liftType == "" {
		return nil, apperrors.Loader("lift feature has no recognizable lift type", nil)
	}
	name, _ := f.Properties["name"].(string)
	status, _ := f.Properties["status"].(string)

	var activities []domain.Activity
	if status == "" || status == string(domain.StatusOperating) {
		activities = []domain.Activity{domain.ActivityDownhill}
	}

	inputSkiAreas := propertyStrings(f, "skiAreas")

	return &domain.Object{
		Key:               featureKey(f, source, "lift"),
		Kind:              domain.KindLift,
		Source:            source,
		Geometry:          domain.NewGeometry(f.Geometry),
		ElevationGeometry: domain.NewGeometry(f.Geometry),
		Activities:        activities,
		SkiAreas:          inputSkiAreas,
		Flags:             domain.Flags{IsInSkiAreaSite: len(inputSkiAreas) > 0},
		Properties:        map[string]interface{}{"name": name, "liftType": liftType},
	}, nil
}

// classifyRun implements §4.2's Run rule exactly: backcountry runs not
// already tied to a site relation are excluded from clustering, and
// everything else maps Downhill/SnowPark uses to the Downhill activity,
// Nordic to Nordic, and Skitour/other uses to no activity at all.
func classifyRun(f *geojson.Feature, source domain.Source) (*domain.Object, error) {
	if f.Geometry == nil {
		return nil, apperrors.Loader("run feature has no geometry", nil)
	}

	uses := classifyRunUses(f)
	name, _ := f.Properties["name"].(string)
	difficulty, _ := f.Properties["piste:difficulty"].(string)
	grooming, _ := f.Properties["grooming"].(string)
	patrolled, hasPatrolled := f.Properties["patrolled"].(bool)
	inputSkiAreas := propertyStrings(f, "skiAreas")
	alreadyTiedToSite := len(inputSkiAreas) > 0

	var activities []domain.Activity
	if alreadyTiedToSite || grooming != "Backcountry" || (hasPatrolled && patrolled) {
		activities = usesToActivities(uses)
	}

	basis := (containsUse(uses, domain.UseDownhill) || containsUse(uses, domain.UseNordic)) &&
		len(activities) > 0 && !alreadyTiedToSite

	return &domain.Object{
		Key:        featureKey(f, source, "run"),
		Kind:       domain.KindRun,
		Source:     source,
		Geometry:   domain.NewGeometry(f.Geometry),
		Activities: activities,
		Uses:       uses,
		SkiAreas:   inputSkiAreas,
		Flags:      domain.Flags{IsBasisForNewSkiArea: basis},
		Properties: map[string]interface{}{"name": name, "difficulty": difficulty},
		PixelIDs:   propertyStrings(f, "pixelIds"),
	}, nil
}

func propertyActivities(f *geojson.Feature, key string) []domain.Activity {
	var out []domain.Activity
	for _, v := range propertyStrings(f, key) {
		switch v {
		case string(domain.ActivityDownhill):
			out = append(out, domain.ActivityDownhill)
		case string(domain.ActivityNordic):
			out = append(out, domain.ActivityNordic)
		}
	}
	return out
}

func propertyStrings(f *geojson.Feature, key string) []string {
	raw, ok := f.Properties[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsUse(uses []domain.Use, target domain.Use) bool {
	for _, u := range uses {
		if u == target {
			return true
		}
	}
	return false
}

func classifyRunUses(f *geojson.Feature) []domain.Use {
	var uses []domain.Use
	if v, _ := f.Properties["piste:type"].(string); v != "" {
		switch v {
		case "downhill":
			uses = append(uses, domain.UseDownhill)
		case "nordic":
			uses = append(uses, domain.UseNordic)
		case "skitour":
			uses = append(uses, domain.UseSkitour)
		case "sled", "sleigh":
			uses = append(uses, domain.UseSled)
		case "snow_park":
			uses = append(uses, domain.UseSnowPark)
		case "hike":
			uses = append(uses, domain.UseHike)
		default:
			uses = append(uses, domain.UseOther)
		}
	}
	if v, _ := f.Properties["route"].(string); v == "ski" {
		uses = append(uses, domain.UseDownhill)
	}
	return uses
}

// usesToActivities maps declared uses to clustering activities per
// spec.md §4.2: Downhill|SnowPark -> Downhill, Nordic -> Nordic, every
// other use (including Skitour) contributes no clustering activity.
func usesToActivities(uses []domain.Use) []domain.Activity {
	var activities []domain.Activity
	seen := map[domain.Activity]bool{}
	add := func(a domain.Activity) {
		if !seen[a] {
			seen[a] = true
			activities = append(activities, a)
		}
	}
	for _, u := range uses {
		switch u {
		case domain.UseDownhill, domain.UseSnowPark:
			add(domain.ActivityDownhill)
		case domain.UseNordic:
			add(domain.ActivityNordic)
		}
	}
	return activities
}

func featureKey(f *geojson.Feature, source domain.Source, kind string) string {
	if id, ok := f.Properties["id"].(string); ok && id != "" {
		return fmt.Sprintf("%s:%s:%s", source, kind, id)
	}
	return fmt.Sprintf("%s:%s:%v", source, kind, f.ID)
}
