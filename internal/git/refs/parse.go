package refs

import (
	"fmt"
	"log/slog"
	"strings"
)

// ForEachRefFormat is the --format argument whose output ParseLine accepts.
const ForEachRefFormat = "%(refname) %(objecttype) %(objectname) %(*objectname)"

// ForEachRefArgs lists every ref under the refs namespace.
func ForEachRefArgs() []string {
	return []string{"for-each-ref", "--format=" + ForEachRefFormat, "refs"}
}

// ParseLine parses one for-each-ref record: name, object type, object id and,
// for annotated tags, the dereferenced object id.
func ParseLine(line string) (Ref, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Ref{}, fmt.Errorf("unexpected for-each-ref output line: %q", line)
	}
	ref := Ref{
		Name:       fields[0],
		Kind:       KindOf(fields[0]),
		ObjectType: fields[1],
		Target:     fields[2],
	}
	if len(fields) >= 4 {
		ref.Peeled = fields[3]
	}
	return ref, nil
}

// Parse parses the complete for-each-ref output. Blank lines are ignored and
// malformed ones are skipped.
func Parse(out string) []Ref {
	var refs []Ref
	for _, rawLine := range strings.Split(out, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ref, err := ParseLine(line)
		if err != nil {
			slog.Debug("skipping ref record", slog.Any("error", err))
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// Group indexes refs by GroupKey, keeping the input order inside each group.
func Group(refs []Ref) map[string][]Ref {
	byID := make(map[string][]Ref, len(refs))
	for _, ref := range refs {
		key := ref.GroupKey()
		if key == "" {
			continue
		}
		byID[key] = append(byID[key], ref)
	}
	return byID
}
