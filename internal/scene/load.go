package scene

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ManifestName is the file that marks a directory as a loadable scene.
const ManifestName = "scene.json"

type manifest struct {
	Attrs    map[string]any    `json:"attrs"`
	Products []manifestProduct `json:"products"`
}

type manifestProduct struct {
	Name  string         `json:"name"`
	File  string         `json:"file"`
	Attrs map[string]any `json:"attrs"`
}

var timeKeys = []string{"start_time", "end_time", "time", "nominal_time"}

// LoadDir reads a scene directory: a scene.json manifest plus one image or raw file
// per product. Time attributes in RFC 3339 form are parsed into time.Time.
func LoadDir(dir string) (*Scene, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	for _, key := range timeKeys {
		raw, ok := m.Attrs[key].(string)
		if !ok {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		m.Attrs[key] = parsed.UTC()
	}

	scn := New(m.Attrs)
	for _, entry := range m.Products {
		product := &Product{Name: entry.Name, Attrs: entry.Attrs}
		if product.Attrs == nil {
			product.Attrs = map[string]any{}
		}
		if entry.File != "" {
			if err := loadPayload(product, filepath.Join(dir, entry.File)); err != nil {
				return nil, fmt.Errorf("product %s: %w", entry.Name, err)
			}
		}
		if err := scn.Add(product); err != nil {
			return nil, err
		}
	}
	return scn, nil
}

func loadPayload(product *Product, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		product.Image = img
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		product.Raw = raw
	}
	return nil
}
