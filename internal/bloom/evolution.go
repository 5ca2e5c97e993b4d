package bloom

import (
	"fmt"
	"os"
	"time"
)

// EvolutionLog is the append-only record of how the bloom prediction evolves
// as more forcing data accumulates over a season: one line per completed
// prediction run, keyed by the forcing data date.
type EvolutionLog struct {
	path string
}

// NewEvolutionLog returns the evolution log at path. The file is created on
// first append.
func NewEvolutionLog(path string) *EvolutionLog {
	return &EvolutionLog{path: path}
}

// Append adds one line to the log.
func (l *EvolutionLog) Append(line string) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("error opening bloom date log: %w", err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ForecastLogLine formats a single-run prediction as an evolution log line.
func ForecastLogLine(dataDate time.Time, r Result) string {
	return fmt.Sprintf(
		"  %s      %s  %.4f",
		dataDate.Format("2006-01-02"), r.Date.Format("2006-01-02"), r.Biomass)
}
