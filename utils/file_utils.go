package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
)

// WriteSnippetFiles writes every instruction that carries a snippet and a
// filename to that filename under dir, creating directories as needed.
// Later steps overwrite earlier ones with the same filename. It returns the
// written paths in step order.
func WriteSnippetFiles(dir string, instructions []db.Instruction, logger *logrus.Logger) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}

	var written []string
	for _, in := range instructions {
		data, err := db.DecodeObject(in.Data)
		if err != nil {
			return written, fmt.Errorf("step %d: %w", in.StepNumber, err)
		}
		snippet, _ := data["snippet"].(string)
		name, _ := data["filename"].(string)
		if snippet == "" || name == "" {
			continue
		}

		path := filepath.Join(root, filepath.FromSlash(name))
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			return written, fmt.Errorf("step %d: filename %q escapes the output directory", in.StepNumber, name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("step %d: %w", in.StepNumber, err)
		}
		if err := os.WriteFile(path, []byte(snippet), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		logger.WithField("step", in.StepNumber).Infof("Wrote %s", path)
		written = append(written, path)
	}
	return written, nil
}
