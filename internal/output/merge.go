package output

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/wildstyl3r/erdmc/internal/utils"
)

// Merge appends every file in dir matching pattern to w, in natural file name
// order, and returns the merged paths.
func Merge(w io.Writer, dir, pattern string) ([]string, error) {
	paths, err := utils.GlobNatural(dir, pattern)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	for _, path := range paths {
		if err := appendFile(bw, path); err != nil {
			return nil, err
		}
	}
	return paths, bw.Flush()
}

func appendFile(w *bufio.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		w.Write(sc.Bytes())
		w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
