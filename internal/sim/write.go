package sim

import (
	"bufio"
	"fmt"

	"github.com/wildstyl3r/erdmc/internal/output"
	"github.com/wildstyl3r/erdmc/internal/utils"
)

// Files names the outputs of one run; prefix is usually the config file name.
type Files struct {
	Events, Ranges, Stats string
}

func FileNames(prefix string, seed uint64) Files {
	return Files{
		Events: fmt.Sprintf("%s_events_%d.dat", prefix, seed),
		Ranges: fmt.Sprintf("%s_ranges_%d.dat", prefix, seed),
		Stats:  fmt.Sprintf("%s_stats_%d.dat", prefix, seed),
	}
}

// Write stores the real phase results in dir.
func (res *Result) Write(dir string, makeDir bool, files Files) error {
	if err := writeFile(dir, makeDir, files.Events, func(w *bufio.Writer) error {
		return output.WriteEvents(w, res.Real.Events, res.Format)
	}); err != nil {
		return err
	}
	if err := writeFile(dir, makeDir, files.Ranges, func(w *bufio.Writer) error {
		return output.WriteRanges(w, res.Real.Ranges)
	}); err != nil {
		return err
	}
	return writeFile(dir, makeDir, files.Stats, func(w *bufio.Writer) error {
		_, err := res.Real.Stats.WriteTo(w)
		return err
	})
}

func writeFile(dir string, makeDir bool, name string, fill func(*bufio.Writer) error) error {
	f, err := utils.CreateFile(makeDir, dir, name)
	if err != nil {
		return fmt.Errorf("unable to save %s: %w", name, err)
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	return nil
}
