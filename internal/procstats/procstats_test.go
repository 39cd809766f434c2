package procstats

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNodeIndentsByDepth(t *testing.T) {
	root := &node{pid: 1, name: "init", children: []*node{
		{pid: 10, name: "supervisor", children: []*node{
			{pid: 11, name: "chrome"},
		}},
	}}

	var sb strings.Builder
	formatNode(&sb, root, 0)

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"- init #1",
		"  - supervisor #10",
		"    - chrome #11",
	}, lines)
}

func TestFormatNodeSiblingsPreserveGivenOrder(t *testing.T) {
	root := &node{pid: 1, name: "init", children: []*node{
		{pid: 5, name: "a"},
		{pid: 6, name: "b"},
	}}

	var sb strings.Builder
	formatNode(&sb, root, 0)

	assert.Equal(t, "- init #1\n  - a #5\n  - b #6\n", sb.String())
}

func TestTreeIsRootedAtOwnPID(t *testing.T) {
	out, err := Tree(context.Background())
	require.NoError(t, err)

	selfLine := fmt.Sprintf("#%d", os.Getpid())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], selfLine, "the first line must be this process, not an unrelated OS root")
	assert.False(t, strings.HasPrefix(lines[0], "  "), "the root line must be unindented")
}
