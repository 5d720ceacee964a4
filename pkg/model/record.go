package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidLevel = errors.New("invalid log level")
	ErrEmptyMessage = errors.New("log message is empty")
)

// Level is the severity of a LogRecord.
type Level int

// Values match the numeric levels earlier clients persisted,
// so older stores decode without migration.
const (
	Debug       Level = 1
	Information Level = 2
	Warning     Level = 3
	Error       Level = 4
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "Debug"
	case Information:
		return "Information"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	return l >= Debug && l <= Error
}

// Qualifies reports whether records at this level are eligible for uplink.
func (l Level) Qualifies() bool {
	return l == Warning || l == Error
}

// ParseLevel accepts level names case-insensitively, plus "info" and "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return Debug, nil
	case "information", "info":
		return Information, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		parsed, err := ParseLevel(name)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidLevel, b)
	}
	if !Level(n).Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, n)
	}
	*l = Level(n)
	return nil
}

// LogRecord is a single log event. Records are values: once built by
// NewRecord they are never mutated by the store or the uplink.
type LogRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      Level          `json:"level"`
	Message    string         `json:"message"`
	Exception  string         `json:"exception,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Now is the clock used by NewRecord.
var Now = time.Now

// NewRecord stamps a record with the current UTC time. A nil err leaves
// Exception empty.
func NewRecord(level Level, message string, err error, props map[string]any) LogRecord {
	rec := LogRecord{
		Timestamp: Now().UTC(),
		Level:     level,
		Message:   message,
	}
	if err != nil {
		rec.Exception = err.Error()
	}
	rec.Properties = CleanProperties(props)
	return rec
}

// CleanProperties copies props, replacing values JSON cannot encode (NaN,
// infinities, channels, funcs) with their fmt.Sprint form. Empty input
// returns nil.
func CleanProperties(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if _, err := json.Marshal(v); err != nil {
			v = fmt.Sprint(v)
		}
		out[k] = v
	}
	return out
}

// Sanitized returns r with its properties passed through CleanProperties.
func (r LogRecord) Sanitized() LogRecord {
	r.Properties = CleanProperties(r.Properties)
	return r
}

// CheckEncoding returns the error JSON encoding of r would fail with. A
// record with an invalid level or a timestamp outside years 0-9999 fails.
func (r LogRecord) CheckEncoding() error {
	_, err := json.Marshal(r)
	return err
}

// Validate checks the fields every stored record must have.
func (r LogRecord) Validate() error {
	if !r.Level.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, int(r.Level))
	}
	if r.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}
