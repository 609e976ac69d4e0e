// Package manifest extracts the processing manifest of a root map and records
// the run manifest (run.json) describing one conversion's inputs, plan and
// outputs.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// RunManifest represents a complete record of a conversion run.
type RunManifest struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Inputs     Inputs    `json:"inputs"`
	Plan       Plan      `json:"plan"`
	Outputs    Outputs   `json:"outputs"`
	Status     string    `json:"status"`
	Duration   int64     `json:"duration_ms"`
	EventCount int       `json:"event_count"`
	Failed     []string  `json:"failed,omitempty"`
}

// Inputs captures all inputs to the run.
type Inputs struct {
	RootMap    string      `json:"root_map"`
	ConfigHash string      `json:"config_hash"`
	Source     *Source     `json:"source,omitempty"`
	Files      []FileInput `json:"files"`
}

// FileInput is one manifest entry with the content hash of its original.
type FileInput struct {
	Path string `json:"path"`
	Hash string `json:"hash,omitempty"`
}

// Plan captures how the run was executed.
type Plan struct {
	Engine    string   `json:"engine"`
	Programs  []string `json:"programs"`
	Workers   int      `json:"workers"`
	MaxRounds int      `json:"max_rounds"`
	CleanID   bool     `json:"clean_id"`
}

// Outputs captures what the run produced.
type Outputs struct {
	ProjectDir     string            `json:"project_dir"`
	MainFile       string            `json:"main_file"`
	DCFile         string            `json:"dc_file"`
	ArtifactHashes map[string]string `json:"artifact_hashes,omitempty"`
}

// Run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial" // some files failed and were skipped
	StatusFailed  = "failed"
)

// ToJSON serializes the manifest to JSON.
func (m *RunManifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest from JSON.
func FromJSON(data []byte) (*RunManifest, error) {
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// WriteFile stores the manifest at path.
func (m *RunManifest) WriteFile(path string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Hash computes a deterministic hash of the manifest's inputs and plan.
// Two runs with the same hash converted identical sources the same way.
func (m *RunManifest) Hash() (string, error) {
	hashInput := struct {
		RootMap    string      `json:"root_map"`
		ConfigHash string      `json:"config_hash"`
		Files      []FileInput `json:"files"`
		Plan       Plan        `json:"plan"`
	}{
		RootMap:    m.Inputs.RootMap,
		ConfigHash: m.Inputs.ConfigHash,
		Files:      m.Inputs.Files,
		Plan:       m.Plan,
	}

	data, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// HashFile returns the hex sha256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the manifest
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
