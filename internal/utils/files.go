package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facette/natsort"
)

func GetFilename(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CreateFile creates name inside outputPath, making the directory when asked to.
func CreateFile(makeDir bool, outputPath, name string) (*os.File, error) {
	if outputPath == "" || outputPath == "." {
		return os.Create(name)
	}
	if makeDir {
		if err := os.MkdirAll(outputPath, 0750); err != nil {
			return nil, fmt.Errorf("creating output directory %s: %w", outputPath, err)
		}
	}
	return os.Create(filepath.Join(outputPath, name))
}

type naturalPaths []string

func (p naturalPaths) Len() int           { return len(p) }
func (p naturalPaths) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p naturalPaths) Less(i, j int) bool { return natsort.Compare(filepath.Base(p[i]), filepath.Base(p[j])) }

// GlobNatural lists files in dir matching pattern, ordered so that run_2 precedes run_10.
func GlobNatural(dir, pattern string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Sort(naturalPaths(paths))
	return paths, nil
}
