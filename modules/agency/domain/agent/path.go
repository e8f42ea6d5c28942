package agent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Path is a materialized ancestor chain, root-first. It is stored as a
// dot-joined string of UUIDs so descendant containment becomes a prefix query.
type Path []uuid.UUID

const pathSeparator = "."

func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, pathSeparator)
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid hierarchy path segment %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = id.String()
	}
	return strings.Join(parts, pathSeparator)
}

func (p Path) Depth() int {
	return len(p)
}

func (p Path) Contains(id uuid.UUID) bool {
	for _, segment := range p {
		if segment == id {
			return true
		}
	}
	return false
}

// Append returns a copy of the path with id as the new deepest segment.
func (p Path) Append(id uuid.UUID) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, id)
}

// SubtreePrefix is the string every descendant path of an agent starts with:
// the agent's own path plus the agent's id. Descendants match either the
// prefix exactly (direct reports) or prefix + "." (deeper levels).
func SubtreePrefix(agentPath Path, agentID uuid.UUID) string {
	return agentPath.Append(agentID).String()
}

// Splice rebuilds a descendant's path after its ancestor moved. The segment
// run up to and including movedID is replaced with newBase + movedID while the
// suffix below movedID is preserved. Fails if movedID is not on the path.
func Splice(descendantPath Path, movedID uuid.UUID, newBase Path) (Path, error) {
	idx := -1
	for i, segment := range descendantPath {
		if segment == movedID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("agent %s not found on descendant path %q", movedID, descendantPath.String())
	}

	out := make(Path, 0, len(newBase)+1+len(descendantPath)-idx-1)
	out = append(out, newBase...)
	out = append(out, movedID)
	out = append(out, descendantPath[idx+1:]...)
	return out, nil
}
