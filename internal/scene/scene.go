// Package scene holds the in-memory products handed to the writer stage by the
// previous pipeline stage, plus the spatial-area descriptor attached to them.
package scene

import (
	"fmt"
	"image"
	"maps"
)

// Area describes the projection and grid of a product.
type Area struct {
	Name   string `json:"name"`
	AreaID string `json:"area_id"`
	ProjID string `json:"proj_id"`
	Proj4  string `json:"proj4"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Map returns the area fields used for topic composition and message payloads.
func (a Area) Map() map[string]any {
	return map[string]any{
		"name":    a.Name,
		"area_id": a.AreaID,
		"proj_id": a.ProjID,
		"proj4":   a.Proj4,
		"shape":   []int{a.Width, a.Height},
	}
}

// Product is one named dataset of a scene.
type Product struct {
	Name  string
	Attrs map[string]any
	Image image.Image
	Raw   []byte
}

// Area returns the spatial-area descriptor carried in the product attributes.
// Absence is reported with ok=false and is not an error.
func (p *Product) Area() (Area, bool) {
	if p == nil || p.Attrs == nil {
		return Area{}, false
	}
	switch v := p.Attrs["area"].(type) {
	case Area:
		return v, true
	case *Area:
		if v == nil {
			return Area{}, false
		}
		return *v, true
	case map[string]any:
		return areaFromMap(v)
	default:
		return Area{}, false
	}
}

func areaFromMap(m map[string]any) (Area, bool) {
	area := Area{}
	area.Name, _ = m["name"].(string)
	area.AreaID, _ = m["area_id"].(string)
	area.ProjID, _ = m["proj_id"].(string)
	area.Proj4, _ = m["proj4"].(string)
	if area.AreaID == "" && area.Name == "" {
		return Area{}, false
	}
	switch shape := m["shape"].(type) {
	case []any:
		if len(shape) == 2 {
			area.Width = toInt(shape[0])
			area.Height = toInt(shape[1])
		}
	case []int:
		if len(shape) == 2 {
			area.Width, area.Height = shape[0], shape[1]
		}
	}
	if w, ok := m["width"]; ok {
		area.Width = toInt(w)
	}
	if h, ok := m["height"]; ok {
		area.Height = toInt(h)
	}
	return area, true
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Scene is a set of products sharing scene-level metadata.
type Scene struct {
	attrs    map[string]any
	products map[string]*Product
	order    []string
}

// New returns an empty scene carrying attrs.
func New(attrs map[string]any) *Scene {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Scene{attrs: attrs, products: make(map[string]*Product)}
}

// Add registers a product, replacing any product with the same name.
func (s *Scene) Add(p *Product) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("scene: product requires a name")
	}
	if _, exists := s.products[p.Name]; !exists {
		s.order = append(s.order, p.Name)
	}
	s.products[p.Name] = p
	return nil
}

// Attrs returns a copy of the scene metadata.
func (s *Scene) Attrs() map[string]any {
	return maps.Clone(s.attrs)
}

// Product looks up a product by name.
func (s *Scene) Product(name string) (*Product, bool) {
	p, ok := s.products[name]
	return p, ok
}

// ProductNames lists products in insertion order.
func (s *Scene) ProductNames() []string {
	return append([]string(nil), s.order...)
}
