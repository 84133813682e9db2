package feedback

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileSource reads pre-aggregated feedback items from a JSON file. It is
// the simplest boundary adapter: upstream tools drop a file, the engine
// picks it up.
type FileSource struct {
	path string
}

var _ schemas.FeedbackSource = (*FileSource)(nil)

// NewFileSource builds a FileSource for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Collect parses the file into feedback items. A missing file is an
// empty collection, not an error.
func (f *FileSource) Collect(ctx context.Context) ([]schemas.FeedbackItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading feedback file %s: %w", f.path, err)
	}
	var items []schemas.FeedbackItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing feedback file %s: %w", f.path, err)
	}
	return items, nil
}

// FileCandidateSource reads improvement candidates from a JSON file
// produced by an external generator.
type FileCandidateSource struct {
	path string
}

var _ schemas.CandidateSource = (*FileCandidateSource)(nil)

// NewFileCandidateSource builds a FileCandidateSource for the given path.
func NewFileCandidateSource(path string) *FileCandidateSource {
	return &FileCandidateSource{path: path}
}

// Candidates parses the candidate file. The summary is ignored here; a
// live generator would use it, a file already has its contents fixed.
func (f *FileCandidateSource) Candidates(ctx context.Context, _ schemas.FeedbackSummary) ([]schemas.ImprovementCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading candidate file %s: %w", f.path, err)
	}
	var candidates []schemas.ImprovementCandidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parsing candidate file %s: %w", f.path, err)
	}
	return candidates, nil
}
