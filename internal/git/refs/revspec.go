package refs

import "strings"

const (
	HeadName = "HEAD"

	allBranchesParam   = "--all"
	localBranchesParam = "--branches"
)

// RevSpec parametrizes history browsing: a single ref, every branch, the
// local branches, or HEAD. Two specs are equal when their parameters are.
type RevSpec struct {
	params      []string
	description string
}

// NewRevSpec builds a spec over the given rev-list parameters. No parameters
// stands for "the current HEAD".
func NewRevSpec(description string, params ...string) *RevSpec {
	return &RevSpec{params: append([]string(nil), params...), description: description}
}

// ForRef wraps a single ref.
func ForRef(ref Ref) *RevSpec {
	return NewRevSpec(ref.Short(), ref.Name)
}

// ForRefName wraps a single fully qualified ref name.
func ForRefName(name string) *RevSpec {
	return ForRef(Ref{Name: name, Kind: KindOf(name)})
}

func AllBranches() *RevSpec {
	return NewRevSpec("All branches", allBranchesParam)
}

func LocalBranches() *RevSpec {
	return NewRevSpec("Local branches", localBranchesParam)
}

// DetachedHead is used when HEAD is not a symbolic ref to a branch.
func DetachedHead() *RevSpec {
	return NewRevSpec("("+HeadName+")", HeadName)
}

func (s *RevSpec) Params() []string {
	return append([]string(nil), s.params...)
}

func (s *RevSpec) IsEmpty() bool {
	return len(s.params) == 0
}

// Key is the structural identity of the spec.
func (s *RevSpec) Key() string {
	return strings.Join(s.params, "\x00")
}

func (s *RevSpec) Equal(other *RevSpec) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Key() == other.Key()
}

func (s *RevSpec) String() string {
	if s.description != "" {
		return s.description
	}
	return strings.Join(s.params, " ")
}
