package resolve

import (
	"fmt"
	"strings"

	"github.com/natefinch/atomic"
)

// WritePlanFile renders plan as a human-readable install order and commits
// it to path in one all-or-nothing write, the same guarantee apt relies on
// when it writes its generated install order to disk before handing it to
// dpkg: a crash mid-write must never leave a truncated plan file for a
// retried "install" to pick up.
func WritePlanFile(path string, plan Plan) error {
	var buf strings.Builder

	for _, step := range plan.Steps {
		fmt.Fprintf(&buf, "%s %s\n", step.Name, step.Version)
	}

	if err := atomic.WriteFile(path, strings.NewReader(buf.String())); err != nil {
		return fmt.Errorf("resolve: write plan file %s: %w", path, err)
	}

	return nil
}
