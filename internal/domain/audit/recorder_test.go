package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	oldState := map[string]any{"kind": "time", "description": "weld", "quantity": "2.0000"}
	newState := map[string]any{"kind": "adjust", "description": "weld", "reason": "rework"}

	changes := Diff(oldState, newState)

	assert.Equal(t, map[string]any{"old": "time", "new": "adjust"}, changes["kind"])
	assert.Equal(t, map[string]any{"old": nil, "new": "rework"}, changes["reason"])
	assert.Equal(t, map[string]any{"old": "2.0000", "new": nil}, changes["quantity"])
	assert.NotContains(t, changes, "description")
}
