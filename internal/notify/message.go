package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	magic       = "pytroll:/"
	wireVersion = "v1.01"
	mimeJSON    = "application/json"
	timeLayout  = "2006-01-02T15:04:05.000000"

	// TypeFile announces a written output file.
	TypeFile = "file"
	// TypeInfo carries operator messages such as connectivity checks.
	TypeInfo = "info"
)

// ErrMalformed reports a message that does not follow the wire framing.
var ErrMalformed = errors.New("malformed message")

// Message is one notification.
type Message struct {
	ID      string
	Topic   string
	Type    string
	Sender  string
	Time    time.Time
	Version string
	Data    map[string]any
}

// NewMessage builds a message with a fresh identifier and timestamp.
func NewMessage(topic, msgType string, data map[string]any) Message {
	return Message{
		ID:      uuid.NewString(),
		Topic:   topic,
		Type:    msgType,
		Time:    time.Now().UTC(),
		Version: wireVersion,
		Data:    data,
	}
}

// CleanTopic makes a composed topic encodable: whitespace runs become
// underscores and a missing leading slash is added.
func CleanTopic(topic string) string {
	topic = strings.Join(strings.Fields(topic), "_")
	if !strings.HasPrefix(topic, "/") {
		topic = "/" + topic
	}
	return topic
}

// Encode renders the message in wire form.
func Encode(m Message) (string, error) {
	if !strings.HasPrefix(m.Topic, "/") {
		return "", fmt.Errorf("%w: topic %q must start with '/'", ErrMalformed, m.Topic)
	}
	if strings.ContainsAny(m.Topic, " \t\n") || strings.ContainsAny(m.Type, " \t\n") {
		return "", fmt.Errorf("%w: topic and type cannot contain whitespace", ErrMalformed)
	}
	sender := m.Sender
	if sender == "" {
		sender = "unknown"
	}
	version := m.Version
	if version == "" {
		version = wireVersion
	}
	payload, err := json.Marshal(m.Data)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return strings.Join([]string{
		magic + m.Topic,
		m.Type,
		sender,
		m.Time.UTC().Format(timeLayout),
		version,
		mimeJSON,
		string(payload),
	}, " "), nil
}

// Decode parses the wire form. The identifier is not part of the framing and is left empty.
func Decode(raw string) (Message, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), " ", 7)
	if len(parts) < 5 {
		return Message{}, fmt.Errorf("%w: expected at least 5 fields, got %d", ErrMalformed, len(parts))
	}
	topic, ok := strings.CutPrefix(parts[0], magic)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing %q prefix", ErrMalformed, magic)
	}
	ts, err := time.Parse(timeLayout, parts[3])
	if err != nil {
		return Message{}, fmt.Errorf("%w: time: %v", ErrMalformed, err)
	}
	m := Message{
		Topic:   topic,
		Type:    parts[1],
		Sender:  parts[2],
		Time:    ts.UTC(),
		Version: parts[4],
	}
	if len(parts) == 7 {
		if parts[5] != mimeJSON {
			return Message{}, fmt.Errorf("%w: unsupported mime type %q", ErrMalformed, parts[5])
		}
		if err := json.Unmarshal([]byte(parts[6]), &m.Data); err != nil {
			return Message{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
		}
	}
	return m, nil
}

// Subject maps a topic onto a NATS subject under prefix.
func Subject(prefix, topic string) string {
	tokens := make([]string, 0, 8)
	if prefix = strings.Trim(prefix, "."); prefix != "" {
		tokens = append(tokens, prefix)
	}
	for _, segment := range strings.Split(topic, "/") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		segment = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(segment)
		tokens = append(tokens, segment)
	}
	return strings.Join(tokens, ".")
}
