// Package productlist loads the YAML product list that maps areas and products to
// output filenames, display names, and writers.
package productlist

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"l2writer/internal/compose"
	"l2writer/internal/writer"
)

// DefaultPattern is used when no level of the product list sets fname_pattern.
const DefaultPattern = "{time:%Y%m%d_%H%M}_{platform_name}_{areaname}_{productname}.{format}"

// DefaultFormat is used when no level of the product list sets formats.
const DefaultFormat = "png"

// timeAliases name the same instant; whichever is present fills the others.
var timeAliases = []string{"time", "start_time", "nominal_time", "satellite_time"}

// Format is one output file variant of a product.
type Format struct {
	Format string `yaml:"format"`
	Writer string `yaml:"writer,omitempty"`
}

// Level holds the settings shared by the common section, areas, and products.
type Level struct {
	OutputDir    string   `yaml:"output_dir,omitempty"`
	FnamePattern string   `yaml:"fname_pattern,omitempty"`
	Formats      []Format `yaml:"formats,omitempty"`
}

// Product configures one product within an area.
type Product struct {
	Level       `yaml:",inline"`
	ProductName string `yaml:"productname,omitempty"`
}

// Area configures the products of one area.
type Area struct {
	Level    `yaml:",inline"`
	AreaName string             `yaml:"areaname,omitempty"`
	Products map[string]Product `yaml:"products"`

	// order holds the product keys as they appear in the document.
	order []string
}

// UnmarshalYAML decodes an area and records the document order of its products.
func (a *Area) UnmarshalYAML(node *yaml.Node) error {
	type plain Area
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*a = Area(p)
	a.order = nil
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "products" || node.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		entries := node.Content[i+1].Content
		for j := 0; j+1 < len(entries); j += 2 {
			a.order = append(a.order, entries[j].Value)
		}
	}
	return nil
}

// Config is a parsed product list.
type Config struct {
	Common      Level           `yaml:"common"`
	ProductList map[string]Area `yaml:"product_list"`
}

// Load reads and validates a product list file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read product list: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a product list document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse product list: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown writer names so misconfiguration fails at load time.
func (c *Config) Validate() error {
	var errs []error
	check := func(where string, formats []Format) {
		for _, f := range formats {
			if strings.TrimSpace(f.Format) == "" {
				errs = append(errs, fmt.Errorf("%s: format entry without format", where))
			}
			if f.Writer == "" {
				continue
			}
			if _, err := writer.ParseKind(f.Writer); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
			}
		}
	}
	check("common", c.Common.Formats)
	for areaID, area := range c.ProductList {
		check("product_list."+areaID, area.Formats)
		for name, prod := range area.Products {
			check("product_list."+areaID+".products."+name, prod.Formats)
		}
	}
	return errors.Join(errs...)
}

// Products lists the configured product names of an area in document order.
// Areas built in code rather than parsed fall back to sorted names.
func (c *Config) Products(areaID string) []string {
	area, ok := c.ProductList[areaID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(area.Products))
	seen := make(map[string]struct{}, len(area.order))
	for _, name := range area.order {
		if _, ok := area.Products[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	var rest []string
	for name := range area.Products {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

type resolved struct {
	outputDir   string
	pattern     string
	formats     []Format
	areaName    string
	productName string
}

func (c *Config) resolve(areaID, product string) resolved {
	r := resolved{
		outputDir:   c.Common.OutputDir,
		pattern:     c.Common.FnamePattern,
		formats:     c.Common.Formats,
		areaName:    areaID,
		productName: product,
	}
	apply := func(l Level) {
		if l.OutputDir != "" {
			r.outputDir = l.OutputDir
		}
		if l.FnamePattern != "" {
			r.pattern = l.FnamePattern
		}
		if len(l.Formats) > 0 {
			r.formats = l.Formats
		}
	}
	if area, ok := c.ProductList[areaID]; ok {
		apply(area.Level)
		if area.AreaName != "" {
			r.areaName = area.AreaName
		}
		if prod, ok := area.Products[product]; ok {
			apply(prod.Level)
			if prod.ProductName != "" {
				r.productName = prod.ProductName
			}
		}
	}
	if r.pattern == "" {
		r.pattern = DefaultPattern
	}
	if len(r.formats) == 0 {
		r.formats = []Format{{Format: DefaultFormat}}
	}
	return r
}

// Filenames derives every output filename of a product together with its display
// name. The most specific level of the product list wins for each setting.
func (c *Config) Filenames(meta map[string]any, areaID, product string) ([]string, string, error) {
	r := c.resolve(areaID, product)

	data := maps.Clone(meta)
	if data == nil {
		data = map[string]any{}
	}
	fillTimeAliases(data)
	data["areaname"] = r.areaName
	data["productname"] = r.productName
	if _, ok := data["area_id"]; !ok {
		data["area_id"] = areaID
	}

	var outputDir string
	if r.outputDir != "" {
		dir, err := compose.Compose(r.outputDir, data)
		if err != nil {
			return nil, "", fmt.Errorf("output_dir for %s/%s: %w", areaID, product, err)
		}
		outputDir = dir
	}

	fnames := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		data["format"] = strings.TrimPrefix(f.Format, ".")
		name, err := compose.Compose(r.pattern, data)
		if err != nil {
			return nil, "", fmt.Errorf("fname_pattern for %s/%s: %w", areaID, product, err)
		}
		fnames = append(fnames, joinOutput(outputDir, name))
	}
	return fnames, r.productName, nil
}

// WriterKinds returns the writer for each filename produced by Filenames, in the same order.
func (c *Config) WriterKinds(areaID, product string) []writer.Kind {
	r := c.resolve(areaID, product)
	kinds := make([]writer.Kind, 0, len(r.formats))
	for _, f := range r.formats {
		if f.Writer != "" {
			if kind, err := writer.ParseKind(f.Writer); err == nil {
				kinds = append(kinds, kind)
				continue
			}
		}
		kinds = append(kinds, writer.KindFor(f.Format))
	}
	return kinds
}

func joinOutput(dir, name string) string {
	if dir == "" {
		return name
	}
	if writer.IsObjectURL(dir) {
		return strings.TrimRight(dir, "/") + "/" + strings.TrimLeft(name, "/")
	}
	return filepath.Join(dir, name)
}

func fillTimeAliases(data map[string]any) {
	var value time.Time
	found := false
	for _, key := range timeAliases {
		if t, ok := data[key].(time.Time); ok {
			value, found = t, true
			break
		}
	}
	if !found {
		return
	}
	for _, key := range timeAliases {
		if _, ok := data[key]; !ok {
			data[key] = value
		}
	}
}
