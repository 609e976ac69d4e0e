package eventstore

import (
	"encoding/json"
	"time"

	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
)

// Event types recorded during a conversion run.
const (
	TypeRunStarted            = "RunStarted"
	TypeManifestExtracted     = "ManifestExtracted"
	TypeFileResolved          = "FileResolved"
	TypeFileFailed            = "FileFailed"
	TypeIdentifiersUniquified = "IdentifiersUniquified"
	TypeDiagnostic            = "Diagnostic"
	TypeRunCompleted          = "RunCompleted"
)

// RunStarted is the payload of TypeRunStarted.
type RunStarted struct {
	RootMap    string `json:"root_map"`
	ConfigHash string `json:"config_hash,omitempty"`
	Engine     string `json:"engine"`
}

// ManifestExtracted is the payload of TypeManifestExtracted.
type ManifestExtracted struct {
	FileCount    int      `json:"file_count"`
	Files        []string `json:"files"`
	Replacements int      `json:"replacements"`
}

// FileResolved is the payload of TypeFileResolved.
type FileResolved struct {
	File   string `json:"file"`
	Rounds int    `json:"rounds"`
}

// FileFailed is the payload of TypeFileFailed.
type FileFailed struct {
	Stage string `json:"stage"`
	File  string `json:"file"`
	Error string `json:"error"`
	Repro string `json:"repro,omitempty"`
}

// IdentifiersUniquified is the payload of TypeIdentifiersUniquified.
type IdentifiersUniquified struct {
	Collisions []string `json:"collisions"`
	Renamed    int      `json:"renamed"`
	Dropped    int      `json:"dropped"`
}

// Diagnostic is the payload of TypeDiagnostic: a warning worth keeping.
type Diagnostic struct {
	Level   string `json:"level"`
	Stage   string `json:"stage,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// RunCompleted is the payload of TypeRunCompleted.
type RunCompleted struct {
	Status     string   `json:"status"`
	DurationMS int64    `json:"duration_ms"`
	FileCount  int      `json:"file_count"`
	Failed     []string `json:"failed,omitempty"`
}

// NewEvent marshals payload into an event of the given type.
func NewEvent(runID, eventType string, payload any) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, cerrors.EventSinkError("encode", err).
			WithContext("run_id", runID).
			WithContext("type", eventType)
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

// Decode unmarshals an event's payload into v.
func Decode(e Event, v any) error {
	if err := json.Unmarshal(e.Payload(), v); err != nil {
		return cerrors.EventSinkError("decode", err).WithContext("type", e.Type())
	}
	return nil
}
