package hierarchy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Compare reports whether replayed has the same widget structure as
// recorded. Level by level:
//
//   - <display> children whose id differs from display are ignored.
//   - Child counts must be equal.
//   - A NAF child on either side accepts the whole level.
//   - Child class names must match in order.
//   - Non-scrollable children with children of their own are compared
//     recursively; scrollable ones are accepted without inspection.
func Compare(recorded, replayed *Node, display string) bool {
	return compareLevel(recorded, replayed, display, 0)
}

func compareLevel(a, b *Node, display string, depth int) bool {
	left := visibleChildren(a, display)
	right := visibleChildren(b, display)

	if len(left) != len(right) {
		logger.Debug("hierarchy: level %d child count %d != %d", depth, len(left), len(right))
		return false
	}
	if hasNAF(left) || hasNAF(right) {
		logger.Debug("hierarchy: level %d has NAF node, accepted", depth)
		return true
	}
	for i := range left {
		if left[i].ClassName != right[i].ClassName {
			logger.Debug("hierarchy: level %d class %q != %q", depth, left[i].ClassName, right[i].ClassName)
			return false
		}
	}
	for i, child := range left {
		if len(child.Children) == 0 || child.Scrollable {
			continue
		}
		if !compareLevel(child, right[i], display, depth+1) {
			return false
		}
	}
	return true
}

func visibleChildren(n *Node, display string) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.IsDisplay() && c.DisplayID != display {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasNAF(nodes []*Node) bool {
	for _, n := range nodes {
		if n.NAF {
			return true
		}
	}
	return false
}

var classAttr = regexp.MustCompile(`class="(\S*)"`)

// ClassSequence returns every class attribute in document order.
func ClassSequence(data []byte) []string {
	matches := classAttr.FindAllSubmatch(data, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = string(m[1])
	}
	return out
}

// CompareSequences is the fallback for dumps where one side wraps an element
// in an extra container. The shorter sequence must appear in order in the
// longer one, skipping at most one long-side element before each match.
// Sequences more than twice as long as each other never match.
func CompareSequences(a, b []string) bool {
	shortSeq, longSeq := a, b
	if len(a) > len(b) {
		shortSeq, longSeq = b, a
	}
	if len(longSeq) > 2*len(shortSeq) {
		return false
	}

	idx := 0
	for _, class := range shortSeq {
		if idx >= len(longSeq) {
			return false
		}
		if longSeq[idx] == class {
			idx++
			continue
		}
		next := indexFrom(longSeq, class, idx)
		if next < 0 || next > idx+1 {
			return false
		}
		idx = next + 1
	}
	return true
}

func indexFrom(list []string, s string, from int) int {
	for i := from; i < len(list); i++ {
		if list[i] == s {
			return i
		}
	}
	return -1
}

// CompareDumps compares two raw dumps. An empty dump on either side is
// accepted. If the structural comparison fails, the class-sequence fallback
// decides. A dump that does not parse is an error.
func CompareDumps(recorded, replayed []byte, display string) (bool, error) {
	if len(recorded) == 0 || len(replayed) == 0 {
		logger.Warn("hierarchy: empty window dump, skipping comparison")
		return true, nil
	}

	a, err := Parse(recorded)
	if err != nil {
		return false, fmt.Errorf("recorded dump: %w", err)
	}
	b, err := Parse(replayed)
	if err != nil {
		return false, fmt.Errorf("replayed dump: %w", err)
	}

	if Compare(a, b, display) {
		return true, nil
	}
	return CompareSequences(ClassSequence(recorded), ClassSequence(replayed)), nil
}

// CompareFiles reads and compares two dump files.
func CompareFiles(recordedPath, replayedPath, display string) (bool, error) {
	recorded, err := os.ReadFile(recordedPath) //#nosec G304 -- artifact paths
	if err != nil {
		return false, err
	}
	replayed, err := os.ReadFile(replayedPath) //#nosec G304 -- artifact paths
	if err != nil {
		return false, err
	}
	return CompareDumps(recorded, replayed, display)
}
