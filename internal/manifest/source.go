package manifest

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Source describes the version control state of the DITA sources.
type Source struct {
	Root   string `json:"root,omitempty"`
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// DetectProvenance inspects the git repository containing dir, if any. A nil
// Source with a nil error means dir is not under version control.
func DetectProvenance(dir string) (*Source, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	src := &Source{}
	if wt, wtErr := repo.Worktree(); wtErr == nil {
		src.Root = wt.Filesystem.Root()
		if st, stErr := wt.Status(); stErr == nil {
			src.Dirty = !st.IsClean()
		}
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// no commits yet
		return src, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	src.Commit = head.Hash().String()
	if head.Name().IsBranch() {
		src.Branch = head.Name().Short()
	}
	return src, nil
}
