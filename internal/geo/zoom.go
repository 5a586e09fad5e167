package geo

// zoomRadius maps map zoom levels to feed radii, most zoomed-in first.
var zoomRadius = []struct {
	zoom     int
	radiusKm float64
}{
	{17, 0.5},
	{16, 1},
	{15, 2},
	{14, 3},
	{13, 5},
	{12, 10},
	{11, 20},
	{10, 40},
}

// MinZoom and MaxZoom bound the zoom table.
const (
	MinZoom = 10
	MaxZoom = 17
)

// RadiusForZoom returns the feed radius for a map zoom level, clamped to the table.
func RadiusForZoom(zoom int) float64 {
	if zoom >= MaxZoom {
		return zoomRadius[0].radiusKm
	}
	if zoom <= MinZoom {
		return zoomRadius[len(zoomRadius)-1].radiusKm
	}
	for _, e := range zoomRadius {
		if e.zoom == zoom {
			return e.radiusKm
		}
	}
	return zoomRadius[len(zoomRadius)-1].radiusKm
}

// ZoomForRadius returns the highest zoom level whose radius covers km.
func ZoomForRadius(km float64) int {
	for _, e := range zoomRadius {
		if e.radiusKm >= km {
			return e.zoom
		}
	}
	return MinZoom
}
