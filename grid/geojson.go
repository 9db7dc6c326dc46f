package grid

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToFeatureCollection exports the map in world meters. Each wall becomes a
// LineString feature; the robot pose and the tracked cell are added when known.
func (g Grid) ToFeatureCollection(walls WallSet, robot *Pose, tracked *Cell) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, w := range walls.Sorted() {
		f := geojson.NewFeature(g.Segment(w))
		f.Properties["layerType"] = "wall"
		f.Properties["gridX"] = w.X
		f.Properties["gridY"] = w.Y
		f.Properties["axis"] = w.Axis.String()
		fc.Append(f)
	}

	if robot != nil {
		f := geojson.NewFeature(orb.Point{robot.X, robot.Y})
		f.Properties["layerType"] = "robot"
		f.Properties["heading"] = robot.Heading
		fc.Append(f)
	}

	if tracked != nil {
		o := g.Origin(*tracked)
		s := g.Size
		ring := orb.Ring{o, {o[0] + s, o[1]}, {o[0] + s, o[1] + s}, {o[0], o[1] + s}, o}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["layerType"] = "tracked"
		f.Properties["gridX"] = tracked.X
		f.Properties["gridY"] = tracked.Y
		fc.Append(f)
	}

	return fc
}

// WallsFromFeatureCollection recovers walls from an exported collection,
// re-quantizing each LineString's midpoint so the import tolerates rounding.
func (g Grid) WallsFromFeatureCollection(fc *geojson.FeatureCollection) WallSet {
	out := make(WallSet)
	for _, f := range fc.Features {
		if lt, _ := f.Properties["layerType"].(string); lt != "wall" {
			continue
		}
		ls, ok := f.Geometry.(orb.LineString)
		if !ok || len(ls) != 2 {
			continue
		}
		mid := orb.Point{(ls[0][0] + ls[1][0]) / 2, (ls[0][1] + ls[1][1]) / 2}
		w, _ := g.Snap(mid)
		out[w] = struct{}{}
	}
	return out
}

// LoadMaze reads a GeoJSON file, such as one written by --render, and returns
// its wall layer as a map.
func (g Grid) LoadMaze(path string) (*WallMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read maze: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal maze %s: %w", path, err)
	}
	walls := g.WallsFromFeatureCollection(fc)
	if len(walls) == 0 {
		return nil, fmt.Errorf("maze %s has no wall features", path)
	}
	return NewWallMap(walls.Sorted()...), nil
}
