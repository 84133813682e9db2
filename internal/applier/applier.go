// Package applier applies a candidate's change set into a sandbox.
// Application is two-phase: every descriptor's pre-conditions are checked
// before the first byte is written, so a rejected change set leaves the
// sandbox untouched.
package applier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// Applier validates and applies file-level change descriptors.
type Applier struct {
	logger *zap.Logger
}

var _ schemas.ChangeApplier = (*Applier)(nil)

// New builds an Applier.
func New(logger *zap.Logger) *Applier {
	return &Applier{logger: logger.Named("applier")}
}

// Apply validates the whole change set against the sandbox tree and, only
// if every descriptor passes, writes the mutations. The returned report
// carries a snapshot per mutated path, enough to reverse the apply. A
// write failure after validation rolls back the paths already touched.
func (a *Applier) Apply(ctx context.Context, handle schemas.SandboxHandle, changes []schemas.ChangeDescriptor) (schemas.ApplyReport, error) {
	report := schemas.ApplyReport{}

	if len(changes) == 0 {
		return report, fmt.Errorf("%w: change set is empty", schemas.ErrInvalidChangeSet)
	}

	// Phase one: validate everything before any mutation.
	resolved := make([]string, len(changes))
	seen := make(map[string]struct{}, len(changes))
	for i, ch := range changes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		path, err := resolvePath(handle.Path, ch.Path)
		if err != nil {
			return report, err
		}
		if _, dup := seen[path]; dup {
			return report, fmt.Errorf("%w: path %q appears more than once", schemas.ErrInvalidChangeSet, ch.Path)
		}
		seen[path] = struct{}{}
		resolved[i] = path

		info, statErr := os.Stat(path)
		exists := statErr == nil
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return report, fmt.Errorf("%w: inspecting %q: %v", schemas.ErrTransientInfrastructure, ch.Path, statErr)
		}
		if exists && info.IsDir() {
			return report, fmt.Errorf("%w: %q is a directory", schemas.ErrInvalidChangeSet, ch.Path)
		}

		switch ch.Op {
		case schemas.OpAdd:
			if exists {
				return report, fmt.Errorf("%w: add target %q already exists", schemas.ErrApplyConflict, ch.Path)
			}
			if ch.Payload == "" {
				return report, fmt.Errorf("%w: add of %q has no payload", schemas.ErrInvalidChangeSet, ch.Path)
			}
		case schemas.OpModify:
			if !exists {
				return report, fmt.Errorf("%w: modify target %q does not exist", schemas.ErrApplyConflict, ch.Path)
			}
			if ch.Payload == "" {
				return report, fmt.Errorf("%w: modify of %q has no payload", schemas.ErrInvalidChangeSet, ch.Path)
			}
		case schemas.OpDelete:
			if !exists {
				return report, fmt.Errorf("%w: delete target %q does not exist", schemas.ErrApplyConflict, ch.Path)
			}
		default:
			return report, fmt.Errorf("%w: unknown operation %q for %q", schemas.ErrInvalidChangeSet, ch.Op, ch.Path)
		}
	}

	// Phase two: mutate, capturing a reversal snapshot per path first.
	for i, ch := range changes {
		path := resolved[i]

		snapshot, err := snapshotPath(ch.Path, path)
		if err != nil {
			a.rollback(report.Reversals, handle.Path)
			return schemas.ApplyReport{}, err
		}

		if err := a.write(ch, path); err != nil {
			a.rollback(report.Reversals, handle.Path)
			return schemas.ApplyReport{}, err
		}

		report.Reversals = append(report.Reversals, snapshot)
		report.Applied = append(report.Applied, ch.Op)
		report.Paths = append(report.Paths, ch.Path)
	}

	a.logger.Debug("Change set applied",
		zap.String("sandbox_id", handle.ID),
		zap.Int("changes", len(changes)),
	)
	return report, nil
}

func (a *Applier) write(ch schemas.ChangeDescriptor, path string) error {
	switch ch.Op {
	case schemas.OpAdd, schemas.OpModify:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("%w: creating parent directory for %q: %v", schemas.ErrTransientInfrastructure, ch.Path, err)
		}
		if err := os.WriteFile(path, []byte(ch.Payload), 0o644); err != nil {
			return fmt.Errorf("%w: writing %q: %v", schemas.ErrTransientInfrastructure, ch.Path, err)
		}
	case schemas.OpDelete:
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("%w: deleting %q: %v", schemas.ErrTransientInfrastructure, ch.Path, err)
		}
	}
	return nil
}

// rollback restores already-mutated paths in reverse order. Best effort:
// the sandbox is discarded on failure anyway, but restoring keeps the
// tree coherent for post-mortem inspection.
func (a *Applier) rollback(snapshots []schemas.FileSnapshot, root string) {
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		path := filepath.Join(root, filepath.FromSlash(snap.Path))
		var err error
		if snap.Existed {
			err = os.WriteFile(path, snap.Content, 0o644)
		} else {
			err = os.Remove(path)
		}
		if err != nil {
			a.logger.Warn("Rollback of partial apply failed", zap.String("path", snap.Path), zap.Error(err))
		}
	}
}

func snapshotPath(relPath, absPath string) (schemas.FileSnapshot, error) {
	content, err := os.ReadFile(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return schemas.FileSnapshot{Path: relPath, Existed: false}, nil
	}
	if err != nil {
		return schemas.FileSnapshot{}, fmt.Errorf("%w: snapshotting %q: %v", schemas.ErrTransientInfrastructure, relPath, err)
	}
	return schemas.FileSnapshot{Path: relPath, Existed: true, Content: content}, nil
}

// resolvePath confines a descriptor path to the sandbox root, rejecting
// absolute paths and traversal outside the tree.
func resolvePath(root, relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("%w: change descriptor has an empty path", schemas.ErrInvalidChangeSet)
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes the sandbox", schemas.ErrInvalidChangeSet, relPath)
	}
	return filepath.Join(root, clean), nil
}
