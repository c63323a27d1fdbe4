package testsupport

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"l2writer/internal/scene"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Image returns a small opaque test image.
func Image() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 200, A: 255})
		}
	}
	return img
}

// WriteSceneDir lays out a scene directory the spool ingester accepts: a manifest
// plus one png per product.
func WriteSceneDir(t testing.TB, dir string, attrs map[string]any, products ...string) {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Image()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	entries := make([]map[string]any, 0, len(products))
	for _, name := range products {
		file := name + ".png"
		WriteFile(t, filepath.Join(dir, file), buf.Bytes())
		entries = append(entries, map[string]any{"name": name, "file": file})
	}
	manifest := map[string]any{"attrs": attrs, "products": entries}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	WriteFile(t, filepath.Join(dir, scene.ManifestName), data)
}
