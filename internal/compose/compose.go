package compose

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// ErrMissingKey reports a template field with no matching metadata entry.
var ErrMissingKey = errors.New("compose: missing key")

// ErrSyntax reports a malformed template.
var ErrSyntax = errors.New("compose: invalid template")

// Compose substitutes every field in pattern with the matching value from data.
func Compose(pattern string, data map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(pattern))

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '{':
			if i+1 < len(pattern) && pattern[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed field at offset %d in %q", ErrSyntax, i, pattern)
			}
			field := pattern[i+1 : i+1+end]
			rendered, err := renderField(field, data)
			if err != nil {
				return "", err
			}
			b.WriteString(rendered)
			i += end + 1
		case '}':
			if i+1 < len(pattern) && pattern[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: stray '}' at offset %d in %q", ErrSyntax, i, pattern)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Keys lists the field names referenced by pattern in order of appearance.
func Keys(pattern string) []string {
	var keys []string
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '{' {
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(pattern[i+1:], '}')
		if end < 0 {
			break
		}
		name, _, _ := strings.Cut(pattern[i+1:i+1+end], ":")
		keys = append(keys, strings.TrimSpace(name))
		i += end + 1
	}
	return keys
}

func renderField(field string, data map[string]any) (string, error) {
	name, spec, _ := strings.Cut(field, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty field name", ErrSyntax)
	}
	value, ok := data[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrMissingKey, name)
	}
	return formatValue(value, spec)
}

// specPattern accepts printf-style flags, width, precision and an optional verb.
var specPattern = regexp.MustCompile(`^([-+# 0]*\d*(?:\.\d+)?)([a-zA-Z]?)$`)

func formatValue(value any, spec string) (string, error) {
	if t, ok := value.(*time.Time); ok {
		if t == nil {
			return "", nil
		}
		value = *t
	}
	if t, ok := value.(time.Time); ok {
		if spec == "" {
			return t.Format("2006-01-02 15:04:05"), nil
		}
		return strftime.Format(spec, t), nil
	}
	if value == nil {
		return "", nil
	}
	if spec == "" {
		return fmt.Sprint(value), nil
	}

	m := specPattern.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("%w: unsupported format spec %q", ErrSyntax, spec)
	}
	prefix, verb := m[1], m[2]
	switch v := value.(type) {
	case string:
		if verb != "" && verb != "s" {
			return "", fmt.Errorf("%w: spec %q does not apply to text", ErrSyntax, spec)
		}
		return fmt.Sprintf("%"+prefix+"s", v), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		switch verb {
		case "":
			verb = "d"
		case "d", "x", "X", "o", "b":
		case "f", "F", "e", "E", "g", "G":
			f, _ := strconv.ParseFloat(fmt.Sprint(v), 64)
			return fmt.Sprintf("%"+prefix+verb, f), nil
		default:
			return "", fmt.Errorf("%w: spec %q does not apply to integers", ErrSyntax, spec)
		}
		return fmt.Sprintf("%"+prefix+verb, v), nil
	case float32, float64:
		switch verb {
		case "":
			verb = "g"
		case "f", "F", "e", "E", "g", "G":
		default:
			return "", fmt.Errorf("%w: spec %q does not apply to floats", ErrSyntax, spec)
		}
		return fmt.Sprintf("%"+prefix+verb, v), nil
	default:
		if verb != "" && verb != "s" && verb != "v" {
			return "", fmt.Errorf("%w: spec %q does not apply to %T", ErrSyntax, spec, v)
		}
		return fmt.Sprintf("%"+prefix+"v", v), nil
	}
}
