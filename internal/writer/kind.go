package writer

import (
	"fmt"
	"strings"
)

// Kind selects the concrete encoder used for an output file.
type Kind string

const (
	KindSimpleImage Kind = "simple_image"
	KindJPEG        Kind = "jpeg"
	KindRaw         Kind = "raw"
)

// ParseKind validates a writer name taken from configuration.
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case KindSimpleImage:
		return KindSimpleImage, nil
	case KindJPEG:
		return KindJPEG, nil
	case KindRaw:
		return KindRaw, nil
	default:
		return "", fmt.Errorf("unknown writer %q", name)
	}
}

// KindFor returns the default writer for an output format.
func KindFor(format string) Kind {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "png":
		return KindSimpleImage
	case "jpg", "jpeg":
		return KindJPEG
	default:
		return KindRaw
	}
}

func (k Kind) contentType() string {
	switch k {
	case KindSimpleImage:
		return "image/png"
	case KindJPEG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
