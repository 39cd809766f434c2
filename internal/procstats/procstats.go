// Package procstats renders the process tree backing the diagnostic /stats
// route. It mirrors the indentation and line format of the pstree walk this
// service's process-tree introspection was modeled on, rebuilt here on top
// of gopsutil so it works without reading /proc by hand.
package procstats

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

type node struct {
	pid      int32
	name     string
	children []*node
}

// Tree renders this process's own subtree as indented text, one "- name
// #pid" line per process, two spaces of indent per level, exactly as
// `pid_map.get(&process::id())` rooted the walk this was modeled on: the
// server process itself plus the browser and worker processes it
// supervises, not the full OS process table.
func Tree(ctx context.Context) (string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}

	nodes := make(map[int32]*node, len(procs))
	ppids := make(map[int32]int32, len(procs))

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			name = "?"
		}
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			ppid = 0
		}
		nodes[p.Pid] = &node{pid: p.Pid, name: name}
		ppids[p.Pid] = ppid
	}

	for pid, n := range nodes {
		ppid := ppids[pid]
		if parent, ok := nodes[ppid]; ok && ppid != pid {
			parent.children = append(parent.children, n)
		}
	}
	for _, n := range nodes {
		sort.Slice(n.children, func(i, j int) bool { return n.children[i].pid < n.children[j].pid })
	}

	self := int32(os.Getpid())
	root, ok := nodes[self]
	if !ok {
		return "", fmt.Errorf("process tree: own pid %d not found", self)
	}

	var sb strings.Builder
	formatNode(&sb, root, 0)
	return sb.String(), nil
}

func formatNode(sb *strings.Builder, n *node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(fmt.Sprintf("- %s #%d\n", n.name, n.pid))
	for _, c := range n.children {
		formatNode(sb, c, depth+1)
	}
}
