package sim

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// RunSpec describes one simulation subprocess invocation.
type RunSpec struct {
	// Executable is the simulation program.
	Executable string
	// Infile is the base input deck.
	Infile string
	// EditFiles are optional input deck override files, applied in order
	// after the base infile.
	EditFiles []string
	// CaptureFile receives the subprocess's combined stdout and stderr for
	// post-mortem inspection.
	CaptureFile string
}

func (spec RunSpec) args() []string {
	args := []string{spec.Infile}
	for _, editFile := range spec.EditFiles {
		args = append(args, "-e", editFile)
	}
	return args
}

// Run invokes the simulation and waits for it to finish, streaming its stdout
// and stderr to the capture file. A non-zero exit status is an error; the
// capture file holds whatever the simulation said before it died.
func Run(ctx context.Context, spec RunSpec, log *zap.SugaredLogger) error {
	capture, err := os.Create(spec.CaptureFile)
	if err != nil {
		return fmt.Errorf("error creating simulation output capture file: %w", err)
	}
	defer capture.Close()

	cmd := exec.CommandContext(ctx, spec.Executable, spec.args()...)
	cmd.Stdout = capture
	cmd.Stderr = capture

	log.Infof(
		"simulation run with %s started at %s",
		spec.Infile, time.Now().Format("2006-01-02 15:04:05"))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf(
			"simulation run with %s failed: %w; see %s",
			spec.Infile, err, spec.CaptureFile)
	}
	log.Infof(
		"simulation run with %s finished at %s",
		spec.Infile, time.Now().Format("2006-01-02 15:04:05"))
	return nil
}
