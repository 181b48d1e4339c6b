// Package refs parses the ref listing produced by git and keeps the
// deduplicated set of revision specifiers a repository offers for browsing.
package refs

import "strings"

const (
	HeadsPrefix   = "refs/heads/"
	TagsPrefix    = "refs/tags/"
	RemotesPrefix = "refs/remotes/"
)

type RefKind uint8

const (
	RefKindOther RefKind = iota
	RefKindBranch
	RefKindRemoteBranch
	RefKindTag
)

func (k RefKind) String() string {
	switch k {
	case RefKindBranch:
		return "branch"
	case RefKindRemoteBranch:
		return "remote"
	case RefKindTag:
		return "tag"
	default:
		return "other"
	}
}

// KindOf classifies a fully qualified ref name by its namespace.
func KindOf(name string) RefKind {
	switch {
	case strings.HasPrefix(name, HeadsPrefix):
		return RefKindBranch
	case strings.HasPrefix(name, RemotesPrefix):
		return RefKindRemoteBranch
	case strings.HasPrefix(name, TagsPrefix):
		return RefKindTag
	default:
		return RefKindOther
	}
}

// Ref is one record of `git for-each-ref`. Peeled is only set for annotated
// tags and holds the id of the object the tag points to.
type Ref struct {
	Name       string // fully qualified: refs/heads/main, refs/tags/v1
	Kind       RefKind
	ObjectType string
	Target     string
	Peeled     string
}

// GroupKey is the object id the ref is listed under: the dereferenced id for
// annotated tags, the direct target otherwise.
func (r Ref) GroupKey() string {
	if r.Peeled != "" {
		return r.Peeled
	}
	return r.Target
}

// Short returns the name without its namespace: main, origin/main, v1.
func (r Ref) Short() string {
	for _, prefix := range []string{HeadsPrefix, RemotesPrefix, TagsPrefix} {
		if strings.HasPrefix(r.Name, prefix) {
			return strings.TrimPrefix(r.Name, prefix)
		}
	}
	return strings.TrimPrefix(r.Name, "refs/")
}
