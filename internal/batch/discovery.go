package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/spotit/internal/utils"
)

// Options controls file discovery.
type Options struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
}

// Discover expands args into image files. Files named explicitly are kept
// even if their extension is unknown, so the caller can report them;
// files found inside directories must be supported images. Duplicates are
// dropped and argument order is kept.
func Discover(args []string, opts Options) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			found, err := discoverInDirectory(arg, opts)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f)
			}
		} else if !matchesAnyPattern(arg, opts.ExcludePatterns) {
			add(arg)
		}
	}
	return files, nil
}

func discoverInDirectory(dir string, opts Options) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIncludeFile(path, opts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return files, nil
}

func shouldIncludeFile(path string, opts Options) bool {
	if matchesAnyPattern(path, opts.ExcludePatterns) {
		return false
	}
	if len(opts.IncludePatterns) == 0 {
		return utils.IsSupportedImage(path)
	}
	return matchesAnyPattern(path, opts.IncludePatterns)
}

// matchesAnyPattern matches the base name against shell patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
