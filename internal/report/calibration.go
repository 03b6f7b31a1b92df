package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/goalcast/goalcast/internal/settle"
)

// CalibrationArtifact wraps a settlement report with run metadata for the
// flat JSON file dropped after each settle run.
type CalibrationArtifact struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Window      string        `json:"window,omitempty"`
	Report      settle.Report `json:"report"`
}

// WriteCalibration writes the report as pretty-printed JSON under dir,
// named by run date. It creates the directory when missing and returns
// the written path.
func WriteCalibration(dir string, at time.Time, window string, r settle.Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	artifact := CalibrationArtifact{
		GeneratedAt: at.UTC(),
		Window:      window,
		Report:      r,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal calibration report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("calibration-%s.json", at.UTC().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write calibration report: %w", err)
	}

	log.Info().Str("path", path).Int("settled", r.Overall.Count).Msg("report: calibration written")
	return path, nil
}
