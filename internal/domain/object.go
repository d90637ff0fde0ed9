// Package domain holds the data model shared by every component of the
// clustering engine: ski areas, lifts, runs, and the generic "object"
// envelope that the object store persists them as.
package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Kind identifies what an Object represents.
type Kind string

const (
	KindSkiArea Kind = "skiArea"
	KindLift    Kind = "lift"
	KindRun     Kind = "run"
	KindSpot    Kind = "spot"
)

// Activity is a clustering activity: the two ways a ski area's runs/lifts
// are grouped for containment, merge, and statistics purposes.
type Activity string

const (
	ActivityDownhill Activity = "downhill"
	ActivityNordic   Activity = "nordic"
)

// Use is a broader classification the Loader assigns runs/lifts to before
// any clustering Activity is derived (e.g. a run tagged piste:type=skitour
// is a Use but not itself a clustering Activity).
type Use string

const (
	UseDownhill Use = "downhill"
	UseNordic   Use = "nordic"
	UseSkitour  Use = "skitour"
	UseSnowPark Use = "snow_park"
	UseSled     Use = "sled"
	UseHike     Use = "hike"
	UseOther    Use = "other"
)

// Source distinguishes where a candidate ski area was read from, used by
// the Merger to decide field-win precedence.
type Source string

const (
	SourceOpenStreetMap Source = "openstreetmap"
	SourceSkimap        Source = "skimap.org"
	SourceGenerated     Source = "generated"
)

// Status is the ski area's operating status.
type Status string

const (
	StatusOperating Status = "operating"
	StatusDisused   Status = "disused"
	StatusProposed  Status = "proposed"
)

// Flags carries the boolean/derived markers referenced throughout
// spec.md §3-4: whether an object is basis for a new generated ski area,
// whether it was produced by the pipeline itself, etc.
type Flags struct {
	IsPolygon            bool `json:"isPolygon,omitempty"`
	IsBasisForNewSkiArea bool `json:"isBasisForNewSkiArea,omitempty"`
	IsInSkiAreaPolygon   bool `json:"isInSkiAreaPolygon,omitempty"`
	IsInSkiAreaSite      bool `json:"isInSkiAreaSite,omitempty"`
	IsGenerated          bool `json:"isGenerated,omitempty"`
	NeedsGeometryFix     bool `json:"needsGeometryFix,omitempty"`
}

// Geometry wraps an orb.Geometry so every component branches on the same
// five-way type switch (Point, LineString, MultiLineString, Polygon,
// MultiPolygon) rather than risking a silent default case.
type Geometry struct {
	Geom orb.Geometry
}

func NewGeometry(g orb.Geometry) *Geometry {
	if g == nil {
		return nil
	}
	return &Geometry{Geom: g}
}

func (g *Geometry) IsPolygonal() bool {
	if g == nil || g.Geom == nil {
		return false
	}
	switch g.Geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}

// Bound exhaustively dispatches over the five geometry kinds this module
// recognizes, per spec.md's requirement that geometry-kind switches never
// fall through to an implicit default.
func (g *Geometry) Bound() orb.Bound {
	switch t := g.Geom.(type) {
	case orb.Point:
		return t.Bound()
	case orb.LineString:
		return t.Bound()
	case orb.MultiLineString:
		return t.Bound()
	case orb.Polygon:
		return t.Bound()
	case orb.MultiPolygon:
		return t.Bound()
	default:
		return orb.Bound{}
	}
}

func (g *Geometry) MarshalJSON() ([]byte, error) {
	return geojson.NewGeometry(g.Geom).MarshalJSON()
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	gj, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return err
	}
	g.Geom = gj.Geometry()
	return nil
}

// Object is the envelope the object store persists: every SkiArea, Lift,
// Run and Spot embeds it.
type Object struct {
	Key               string     `db:"key" json:"key"`
	Kind              Kind       `db:"kind" json:"kind"`
	Source            Source     `db:"source" json:"source,omitempty"`
	Geometry          *Geometry  `db:"-" json:"geometry"`
	ElevationGeometry *Geometry  `db:"-" json:"elevationGeometry,omitempty"`
	Activities        []Activity `db:"-" json:"activities,omitempty"`
	Uses              []Use      `db:"-" json:"uses,omitempty"`
	SkiAreas          []string   `db:"-" json:"skiAreas,omitempty"`
	Flags             Flags      `db:"-" json:"flags"`
	Properties        map[string]interface{} `db:"-" json:"properties,omitempty"`
	// PixelIDs names the snow-cover archive pixels a run's geometry falls
	// under, if the input feature carried them; the Augmenter looks each
	// one up via SnowCoverArchive when summarizing a ski area.
	PixelIDs []string `db:"-" json:"pixelIds,omitempty"`
}

// SkiAreaFromObject reconstructs the kind-specific SkiArea view of a
// generic Object. Name/Status/Websites/RunConventions/Statistics/Location
// are carried in Object.Properties rather than as dedicated struct fields
// on Object, since the object store only persists the generic envelope;
// this is the single place that knows the property key names.
func SkiAreaFromObject(obj *Object) *SkiArea {
	sa := &SkiArea{Object: *obj}
	if obj.Properties == nil {
		return sa
	}
	if v, ok := obj.Properties["name"].(string); ok {
		sa.Name = v
	}
	if v, ok := obj.Properties["status"].(string); ok {
		sa.Status = Status(v)
	}
	if v, ok := obj.Properties["runConvention"].(string); ok {
		sa.RunConventions = v
	}
	if raw, ok := obj.Properties["websites"].([]interface{}); ok {
		for _, w := range raw {
			if s, ok := w.(string); ok {
				sa.Websites = append(sa.Websites, s)
			}
		}
	} else if raw, ok := obj.Properties["websites"].([]string); ok {
		sa.Websites = raw
	}
	if raw, ok := obj.Properties["sources"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				sa.Sources = append(sa.Sources, str)
			}
		}
	} else if raw, ok := obj.Properties["sources"].([]string); ok {
		sa.Sources = raw
	}
	return sa
}

// SkiAreaProperties returns the property map a SkiArea's own fields should
// be persisted under via ObjectDelta.Properties, merged with the passed
// base properties (statistics, location, etc. computed elsewhere).
func SkiAreaProperties(sa *SkiArea, base map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{}
	for k, v := range base {
		props[k] = v
	}
	props["name"] = sa.Name
	props["status"] = string(sa.Status)
	props["runConvention"] = sa.RunConventions
	props["websites"] = sa.Websites
	props["sources"] = sa.Sources
	return props
}

func (o *Object) HasActivity(a Activity) bool {
	for _, existing := range o.Activities {
		if existing == a {
			return true
		}
	}
	return false
}

// HasAnyActivity reports whether o shares at least one activity with
// candidates.
func (o *Object) HasAnyActivity(candidates []Activity) bool {
	for _, a := range candidates {
		if o.HasActivity(a) {
			return true
		}
	}
	return false
}

// SkiArea is a Kind=SkiArea object plus its own fields.
type SkiArea struct {
	Object
	Name       string          `db:"name" json:"name,omitempty"`
	Status     Status          `db:"status" json:"status,omitempty"`
	Websites   []string        `db:"-" json:"websites,omitempty"`
	Statistics *Statistics     `db:"-" json:"statistics,omitempty"`
	Location   *GeocodeResult  `db:"-" json:"location,omitempty"`
	RunConventions string      `db:"run_conventions" json:"runConvention,omitempty"`
	// Sources is the multiset of source ski area keys (type:kind:id) a
	// merged ski area was built from. It is empty for a SkiArea that has
	// never been through a merge; Merge then counts that SkiArea's own Key
	// as its sole source.
	Sources []string `db:"-" json:"sources,omitempty"`
}

// Lift is a Kind=Lift object plus its own fields.
type Lift struct {
	Object
	LiftType   string `db:"lift_type" json:"liftType,omitempty"`
	Name       string `db:"name" json:"name,omitempty"`
	Oneway     *bool  `db:"oneway" json:"oneway,omitempty"`
	Ropeway    bool   `db:"ropeway" json:"ropeway,omitempty"`
	Duration   *int   `db:"duration_seconds" json:"durationSeconds,omitempty"`
	CapacityPH *int   `db:"capacity" json:"capacity,omitempty"`
}

// Run is a Kind=Run object plus its own fields.
type Run struct {
	Object
	Name       string  `db:"name" json:"name,omitempty"`
	Difficulty string  `db:"difficulty" json:"difficulty,omitempty"`
	Grooming   string  `db:"grooming" json:"grooming,omitempty"`
	Lit        bool    `db:"lit" json:"lit,omitempty"`
	Patrolled  *bool   `db:"patrolled" json:"patrolled,omitempty"`
	PisteIDs   []string `db:"-" json:"pisteIds,omitempty"`
}

// Spot is a Kind=Spot object (POI-like point feature such as a summit or
// lodge, carried through the pipeline but never itself clustered).
type Spot struct {
	Object
	Name string `db:"name" json:"name,omitempty"`
}
