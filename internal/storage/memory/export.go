// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/racedqn/autopilot/pkg/core"
)

// ReplayExport is the root JSON structure of an exported session
type ReplayExport struct {
	SessionID   string              `json:"sessionId"`
	SceneName   string              `json:"sceneName"`
	StartedAt   time.Time           `json:"startedAt"`
	TrackLength float64             `json:"trackLength,omitempty"`
	StateSize   int                 `json:"stateSize"`
	Count       int                 `json:"count"`
	Transitions []core.ReplayRecord `json:"transitions"`
}

// exportFileName builds "<scene>_<yyyymmdd_hhmmss>_<id prefix>.json[.gz]"
func exportFileName(s core.Session, compress bool) string {
	scene := s.SceneName
	if scene == "" {
		scene = "session"
	}
	scene = strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(scene)
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.json", scene, s.StartedAt.UTC().Format("20060102_150405"), id)
	if compress {
		name += ".gz"
	}
	return name
}

// exportJSON writes one session to the output directory
func (b *Backend) exportJSON(rec *SessionRecord) error {
	export := ReplayExport{
		SessionID:   rec.Session.ID,
		SceneName:   rec.Session.SceneName,
		StartedAt:   rec.Session.StartedAt,
		TrackLength: rec.Session.TrackLength,
		StateSize:   core.StateSize,
		Count:       len(rec.Records),
		Transitions: rec.Records,
	}
	if export.Transitions == nil {
		export.Transitions = []core.ReplayRecord{}
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(b.cfg.OutputDir, exportFileName(rec.Session, b.cfg.CompressOutput))

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func writeJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}

// ReadExport loads a file written by the memory backend, gzipped or not.
func ReadExport(path string) (ReplayExport, error) {
	var out ReplayExport

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return out, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		dec = json.NewDecoder(gz)
	}
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode export: %w", err)
	}
	return out, nil
}
