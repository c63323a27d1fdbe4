package writer

import (
	"bufio"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"slices"
	"strconv"
	"strings"

	"l2writer/internal/scene"
)

const defaultJPEGQuality = 90

func encode(w io.Writer, product *scene.Product, kind Kind, opts Options) error {
	switch kind {
	case KindSimpleImage:
		enc := png.Encoder{CompressionLevel: pngCompression(opts.Compression)}
		return enc.Encode(w, product.Image)
	case KindJPEG:
		return jpeg.Encode(w, product.Image, &jpeg.Options{Quality: jpegQuality(opts.GDALOptions)})
	case KindRaw:
		return encodeRaw(w, product, opts)
	default:
		return fmt.Errorf("unsupported writer %q", kind)
	}
}

func pngCompression(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func jpegQuality(gdal map[string]string) int {
	raw, ok := gdal["quality"]
	if !ok {
		return defaultJPEGQuality
	}
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || q < 1 || q > 100 {
		return defaultJPEGQuality
	}
	return q
}

// encodeRaw writes a key=value header terminated by a blank line, followed by the
// product payload. Images are written as 8-bit RGBA rows.
func encodeRaw(w io.Writer, product *scene.Product, opts Options) error {
	bw := bufio.NewWriter(w)
	header := map[string]string{"product": product.Name}
	if opts.Format != "" {
		header["format"] = opts.Format
	}
	if opts.BlockSize > 0 {
		header["blocksize"] = strconv.Itoa(opts.BlockSize)
	}
	for k, v := range opts.Tags {
		header["tag."+k] = v
	}
	for k, v := range opts.GDALOptions {
		header["gdal."+k] = v
	}

	var payload []byte
	if product.Raw != nil {
		payload = product.Raw
	} else {
		bounds := product.Image.Bounds()
		rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), product.Image, bounds.Min, draw.Src)
		header["width"] = strconv.Itoa(bounds.Dx())
		header["height"] = strconv.Itoa(bounds.Dy())
		header["pixel"] = "rgba8"
		payload = rgba.Pix
	}
	header["size"] = strconv.Itoa(len(payload))

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", k, header[k]); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}
