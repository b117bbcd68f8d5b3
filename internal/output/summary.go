package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/metrics"
)

// Summary is the machine-readable result of a run.
type Summary struct {
	Name    string            `json:"name"`
	Host    string            `json:"host"`
	Run     *harness.Result   `json:"run"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// WriteJSON writes the summary as indented JSON to w.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

// WriteJSONFile writes the summary to path, replacing any existing file.
func (s *Summary) WriteJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if err := s.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
