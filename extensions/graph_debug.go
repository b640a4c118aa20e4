package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	fetchgraph "github.com/fetchgraph/fetchgraph"
	"github.com/m1gwings/treedrawer/tree"
)

// GraphDebugExtension renders the prescription's dependency graph when a
// fetch terminally fails, adapted from the teacher's GraphDebugExtension
// (extension_debug.go): same treedrawer-based horizontal tree plus
// detailed-view fallback, re-keyed from AnyExecutor to Path since this
// engine resolves a dynamic prescription rather than compile-time
// executors, and driven by the event stream (OnEvent/OnError) rather than
// a Wrap hook around resolution.
type GraphDebugExtension struct {
	fetchgraph.BaseExtension

	mu        sync.Mutex
	prescribe fetchgraph.Prescription
	succeeded map[fetchgraph.Path]bool
	failed    map[fetchgraph.Path]error
	logger    *slog.Logger
}

// NewGraphDebugExtension builds a graph debug extension. prescription is
// the (already dependency-resolved, or resolvable) prescription to render
// around a failure; logHandler chooses the rendering (HumanHandler for
// readable terminal output, any other slog.Handler for structured logs,
// SilentHandler for tests).
func NewGraphDebugExtension(prescription fetchgraph.Prescription, logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: fetchgraph.NewBaseExtension("graph-debug"),
		prescribe:     fetchgraph.ResolveDeps(prescription),
		succeeded:     make(map[fetchgraph.Path]bool),
		failed:        make(map[fetchgraph.Path]error),
		logger:        slog.New(logHandler),
	}
}

// OnEvent tracks success/failure per path as the fill progresses.
func (e *GraphDebugExtension) OnEvent(ev fetchgraph.Event) {
	if ev.Result == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.Result.Success {
		e.succeeded[ev.Path] = true
	} else if ev.Result.Error != nil {
		e.failed[ev.Path] = ev.Result.Error
	}
}

// OnError logs the dependency graph, centered on path, when a terminal
// error occurs.
func (e *GraphDebugExtension) OnError(err error, path fetchgraph.Path) {
	graphOutput := e.formatDependencyGraph(path, err)
	e.logger.Error("Dependency Resolution Error",
		"path", path.String(),
		"error", err.Error(),
		"dependency_graph", graphOutput,
	)
}

// downstreamOf builds a child-lookup map (dependency -> dependents) from
// the prescription's resolved Deps, the tree this extension renders.
func (e *GraphDebugExtension) downstreamOf() map[fetchgraph.Path][]fetchgraph.Path {
	graph := make(map[fetchgraph.Path][]fetchgraph.Path)
	for p, src := range e.prescribe {
		for _, d := range src.Deps {
			graph[d] = append(graph[d], p)
		}
	}
	return graph
}

func (e *GraphDebugExtension) tryFormatHorizontalTree(graph map[fetchgraph.Path][]fetchgraph.Path, failedPath fetchgraph.Path) string {
	parents := make(map[fetchgraph.Path][]fetchgraph.Path)
	allNodes := make(map[fetchgraph.Path]bool)

	for parent, children := range graph {
		allNodes[parent] = true
		for _, child := range children {
			allNodes[child] = true
			parents[child] = append(parents[child], parent)
		}
	}

	var roots []fetchgraph.Path
	for node := range allNodes {
		if len(parents[node]) == 0 {
			roots = append(roots, node)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })

	if len(roots) == 0 {
		return ""
	}

	var rootNode *tree.Tree
	if len(roots) == 1 {
		rootNode = e.buildTree(roots[0], graph, failedPath, make(map[fetchgraph.Path]bool))
	} else {
		rootNode = tree.NewTree(tree.NodeString("Dependencies"))
		for _, root := range roots {
			childTree := e.buildTree(root, graph, failedPath, make(map[fetchgraph.Path]bool))
			if childTree != nil {
				e.addTreeAsChild(rootNode, childTree)
			}
		}
	}

	if rootNode == nil {
		return ""
	}
	return rootNode.String()
}

func (e *GraphDebugExtension) buildTree(p fetchgraph.Path, graph map[fetchgraph.Path][]fetchgraph.Path, failedPath fetchgraph.Path, visited map[fetchgraph.Path]bool) *tree.Tree {
	if visited[p] {
		return nil
	}
	visited[p] = true

	label := p.String()
	e.mu.Lock()
	switch {
	case p == failedPath:
		label += " ❌"
	case e.succeeded[p]:
		label += " ✓"
	}
	e.mu.Unlock()

	node := tree.NewTree(tree.NodeString(label))

	if children, ok := graph[p]; ok {
		sorted := append([]fetchgraph.Path(nil), children...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
		for _, child := range sorted {
			if childTree := e.buildTree(child, graph, failedPath, visited); childTree != nil {
				e.addTreeAsChild(node, childTree)
			}
		}
	}
	return node
}

func (e *GraphDebugExtension) addTreeAsChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		e.addTreeAsChild(newChild, grandchild)
	}
}

func (e *GraphDebugExtension) formatDependencyGraph(failedPath fetchgraph.Path, failedErr error) string {
	var sb strings.Builder
	graph := e.downstreamOf()

	if len(graph) == 0 {
		sb.WriteString("\n(empty - no dependencies tracked)")
		return sb.String()
	}

	if horizontal := e.tryFormatHorizontalTree(graph, failedPath); horizontal != "" {
		sb.WriteString("\n")
		sb.WriteString(horizontal)
		sb.WriteString("\n")
	}

	sb.WriteString("\nDetailed View:\n")

	type entry struct {
		parent   fetchgraph.Path
		children []fetchgraph.Path
	}
	entries := make([]entry, 0, len(graph))
	for parent, children := range graph {
		entries = append(entries, entry{parent: parent, children: children})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].parent.String() < entries[j].parent.String() })

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, en := range entries {
		status := ""
		if e.succeeded[en.parent] {
			status = " ✓"
		} else if _, failed := e.failed[en.parent]; failed {
			status = " ❌"
		}

		if len(en.children) == 0 {
			sb.WriteString(fmt.Sprintf("  %s%s (no dependents)\n", en.parent.String(), status))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s%s\n", en.parent.String(), status))

		sorted := append([]fetchgraph.Path(nil), en.children...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

		for i, child := range sorted {
			name := child.String()
			switch {
			case child == failedPath:
				name += " ❌ FAILED"
			case e.succeeded[child]:
				name += " ✓"
			default:
				if childErr, failed := e.failed[child]; failed {
					name = fmt.Sprintf("%s ❌ (error: %v)", name, childErr)
				} else {
					name += " (pending)"
				}
			}
			if i == len(sorted)-1 {
				sb.WriteString(fmt.Sprintf("    └─> %s\n", name))
			} else {
				sb.WriteString(fmt.Sprintf("    ├─> %s\n", name))
			}
		}
	}

	if failedErr != nil {
		sb.WriteString("\nError Details:\n")
		sb.WriteString(fmt.Sprintf("  Path: %s\n", failedPath.String()))
		sb.WriteString(fmt.Sprintf("  Error: %v\n", failedErr))
	}

	return sb.String()
}

// SilentHandler is a slog.Handler that discards all log output, useful
// for tests that don't want log noise.
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler.
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(context.Context, slog.Level) bool        { return false }
func (h *SilentHandler) Handle(context.Context, slog.Record) error       { return nil }
func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler        { return h }
func (h *SilentHandler) WithGroup(name string) slog.Handler              { return h }

// HumanHandler is a slog.Handler that formats logs for human readability,
// with dedicated layouts for the dependency-graph error event.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{writer: writer, level: level}
}

func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Message == "Dependency Resolution Error" {
		return h.handleDependencyError(record)
	}

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleDependencyError(record slog.Record) error {
	var path, errorMsg, dependencyGraph string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "path":
			path = a.Value.String()
		case "error":
			errorMsg = a.Value.String()
		case "dependency_graph":
			dependencyGraph = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Dependency Resolution Error"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nFailed Path: %s\n", path); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Error: %s\n", errorMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nDependency Graph:%s", dependencyGraph); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}

	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}
	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *HumanHandler) WithGroup(name string) slog.Handler       { return h }
