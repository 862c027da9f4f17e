package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExecuteHooks runs all *.sh scripts in dir in lexical order. A missing
// directory is not an error. The first failing hook stops the sequence.
func (r *Runner) ExecuteHooks(ctx context.Context, dir string, env []string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read hooks dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sh") {
			continue
		}

		r.logger().Info("Running hook", "script", entry.Name())
		if err := r.Run(ctx, Command{Name: filepath.Join(dir, entry.Name()), Dir: dir, Env: env}); err != nil {
			return fmt.Errorf("hook %s failed: %w", entry.Name(), err)
		}
	}
	return nil
}
