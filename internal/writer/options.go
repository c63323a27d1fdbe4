package writer

import (
	"maps"

	"l2writer/internal/config"
)

// Options are the save settings passed through to every staged write.
type Options struct {
	Compression int
	Tags        map[string]string
	Format      string
	GDALOptions map[string]string
	BlockSize   int
}

// OptionsFromConfig copies the [save] section.
func OptionsFromConfig(save config.Save) Options {
	return Options{
		Compression: save.Compression,
		Tags:        maps.Clone(save.Tags),
		Format:      save.Format,
		GDALOptions: maps.Clone(save.GDALOptions),
		BlockSize:   save.BlockSize,
	}
}
