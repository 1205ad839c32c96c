package publication

import (
	"fmt"

	"github.com/scrutin/scrutin/pkg/results"
)

// IsReadyToPublish reports whether every expected subordinate unit of node
// is imported and the record is neither published nor cancelled. A node
// without subordinate units is never ready. The result is advisory.
func IsReadyToPublish(node results.Node, rec Record) bool {
	ready, _ := Readiness(node, rec)
	return ready
}

// Readiness is IsReadyToPublish with a human-readable reason when the node
// is not ready.
func Readiness(node results.Node, rec Record) (bool, string) {
	switch {
	case node.ChildUnitCount == 0:
		return false, "no subordinate units"
	case node.ImportedChildUnitCount != node.ChildUnitCount:
		return false, importGap(node)
	case rec.Status == StatusPublished:
		return false, "already published"
	case rec.Status == StatusCancelled:
		return false, "publication was cancelled"
	}
	return true, ""
}

func importGap(node results.Node) string {
	return fmt.Sprintf("not all subordinate units imported (%d/%d)", node.ImportedChildUnitCount, node.ChildUnitCount)
}
