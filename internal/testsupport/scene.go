package testsupport

import (
	"time"

	"l2writer/internal/scene"
)

// SceneStart is the start_time of scenes built by NewScene.
var SceneStart = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

// NewScene builds a scene over area_id "euro4" with one image product per name.
// Products get an area descriptor unless their name is listed in noArea.
func NewScene(products []string, noArea ...string) *scene.Scene {
	scn := scene.New(map[string]any{
		"platform_name": "NOAA-20",
		"sensor":        "viirs",
		"area_id":       "euro4",
		"start_time":    SceneStart,
		"end_time":      SceneStart.Add(5 * time.Minute),
	})
	skip := make(map[string]bool, len(noArea))
	for _, name := range noArea {
		skip[name] = true
	}
	for _, name := range products {
		attrs := map[string]any{}
		if !skip[name] {
			attrs["area"] = scene.Area{
				Name:   "Euro 4km",
				AreaID: "euro4",
				ProjID: "ps60n",
				Proj4:  "+proj=stere +lat_0=90 +lon_0=14 +lat_ts=60",
				Width:  1024,
				Height: 1024,
			}
		}
		_ = scn.Add(&scene.Product{Name: name, Attrs: attrs, Image: Image()})
	}
	return scn
}
