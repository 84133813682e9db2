// Package vcs implements the version-control contract over go-git. An
// isolated copy is a full clone of the target repository checked out onto
// a trial branch; discarding the copy is a directory removal, so teardown
// cannot leave partial state behind in the shared store.
package vcs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

const trialDirPattern = "crucible-trial-"

// GitStore provides isolated working copies of one local git repository.
type GitStore struct {
	logger      *zap.Logger
	repoPath    string
	sandboxRoot string
	authorName  string
	authorEmail string
}

var _ schemas.VersionControl = (*GitStore)(nil)

// NewGitStore builds a store for the repository at repoPath. sandboxRoot
// is the parent directory for isolated copies; empty means the system
// temp directory.
func NewGitStore(logger *zap.Logger, repoPath, sandboxRoot string) *GitStore {
	return &GitStore{
		logger:      logger.Named("vcs"),
		repoPath:    repoPath,
		sandboxRoot: sandboxRoot,
		authorName:  "crucible",
		authorEmail: "crucible@localhost",
	}
}

// CreateIsolatedCopy clones the repository, resolves the requested
// revision, and checks it out onto a fresh trial branch. The source
// repository must be clean; a dirty or unreachable store fails with
// ErrSandboxCreation before any copy is made.
func (g *GitStore) CreateIsolatedCopy(ctx context.Context, revision string) (schemas.Workspace, error) {
	src, err := git.PlainOpen(g.repoPath)
	if err != nil {
		return schemas.Workspace{}, fmt.Errorf("%w: opening repository %s: %v", schemas.ErrSandboxCreation, g.repoPath, err)
	}

	srcTree, err := src.Worktree()
	if err != nil {
		return schemas.Workspace{}, fmt.Errorf("%w: reading worktree: %v", schemas.ErrSandboxCreation, err)
	}
	status, err := srcTree.Status()
	if err != nil {
		return schemas.Workspace{}, fmt.Errorf("%w: reading worktree status: %v", schemas.ErrSandboxCreation, err)
	}
	if !status.IsClean() {
		return schemas.Workspace{}, fmt.Errorf("%w: repository %s has uncommitted changes", schemas.ErrSandboxCreation, g.repoPath)
	}

	hash, err := src.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return schemas.Workspace{}, fmt.Errorf("%w: resolving revision %q: %v", schemas.ErrSandboxCreation, revision, err)
	}

	id := uuid.New().String()
	dir, err := os.MkdirTemp(g.sandboxRoot, trialDirPattern+"*")
	if err != nil {
		return schemas.Workspace{}, fmt.Errorf("%w: creating sandbox directory: %v", schemas.ErrResourceExhausted, err)
	}

	ws := schemas.Workspace{
		ID:     id,
		Path:   dir,
		Branch: "crucible/trial-" + id[:8],
	}

	clone, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: g.repoPath})
	if err != nil {
		g.cleanupDir(dir)
		return schemas.Workspace{}, fmt.Errorf("%w: cloning %s: %v", schemas.ErrSandboxCreation, g.repoPath, err)
	}

	tree, err := clone.Worktree()
	if err != nil {
		g.cleanupDir(dir)
		return schemas.Workspace{}, fmt.Errorf("%w: opening clone worktree: %v", schemas.ErrSandboxCreation, err)
	}
	err = tree.Checkout(&git.CheckoutOptions{
		Hash:   *hash,
		Branch: plumbing.NewBranchReferenceName(ws.Branch),
		Create: true,
	})
	if err != nil {
		g.cleanupDir(dir)
		return schemas.Workspace{}, fmt.Errorf("%w: checking out %s onto %s: %v", schemas.ErrSandboxCreation, hash, ws.Branch, err)
	}

	g.logger.Debug("Isolated copy created",
		zap.String("workspace_id", ws.ID),
		zap.String("branch", ws.Branch),
		zap.String("revision", hash.String()),
	)
	return ws, nil
}

// Commit stages everything in the workspace and commits it to the trial
// branch, returning the commit hash. Used for traceability of succeeded
// trials; never pushed back to the source repository.
func (g *GitStore) Commit(ctx context.Context, ws schemas.Workspace, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	repo, err := git.PlainOpen(ws.Path)
	if err != nil {
		return "", fmt.Errorf("opening workspace %s: %w", ws.ID, err)
	}
	tree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening workspace worktree: %w", err)
	}
	if err := tree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging workspace changes: %w", err)
	}

	hash, err := tree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  g.authorName,
			Email: g.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing workspace changes: %w", err)
	}
	return hash.String(), nil
}

// Destroy removes the isolated copy. It is idempotent and safe on a
// partially-initialized workspace: a missing directory is success.
func (g *GitStore) Destroy(_ context.Context, ws schemas.Workspace) error {
	if ws.Path == "" {
		return nil
	}
	// Refuse to remove anything that does not look like a trial directory;
	// a corrupted handle must never take out an arbitrary path.
	if !strings.Contains(ws.Path, trialDirPattern) {
		return fmt.Errorf("refusing to destroy non-sandbox path %s", ws.Path)
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		return fmt.Errorf("removing sandbox %s: %w", ws.ID, err)
	}
	return nil
}

func (g *GitStore) cleanupDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		g.logger.Warn("Failed to remove partial sandbox directory", zap.String("dir", dir), zap.Error(err))
	}
}
