package worker

import (
	"bufio"
	"encoding/json"
	"io"
)

// Parser parses the worker's JSON-lines output.
//
// The channel returned by Parse is closed when the reader is exhausted or an
// unrecoverable read error occurs. Malformed lines are skipped.
type Parser interface {
	Parse(reader io.Reader) <-chan Event
}

// DefaultParser implements [Parser] with a buffered scanner.
type DefaultParser struct {
	// BufferSize is the maximum size in bytes for a single JSON line.
	// Defaults to 10MB if not set or <= 0.
	BufferSize int
}

// NewParser creates a new [DefaultParser] with default settings.
func NewParser() *DefaultParser {
	return &DefaultParser{
		BufferSize: 10 * 1024 * 1024,
	}
}

// Parse reads JSON lines from reader and emits parsed events. Empty and
// unparseable lines are skipped.
func (p *DefaultParser) Parse(reader io.Reader) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		scanner := bufio.NewScanner(reader)
		bufSize := p.BufferSize
		if bufSize <= 0 {
			bufSize = 10 * 1024 * 1024
		}
		scanner.Buffer(make([]byte, 0, 64*1024), bufSize)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var raw StreamEvent
			if err := json.Unmarshal(line, &raw); err != nil {
				continue
			}
			events <- NewEventFromStream(&raw)
		}
	}()

	return events
}

// ParseSingle parses one JSON line into an [Event]. Unlike [Parser.Parse] it
// reports malformed input.
func ParseSingle(line string) (Event, error) {
	var raw StreamEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Event{}, err
	}
	return NewEventFromStream(&raw), nil
}
