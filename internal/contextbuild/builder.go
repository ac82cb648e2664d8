// Package contextbuild assembles bounded hierarchical text context for a
// process node, used as prompt material for batch generation.
package contextbuild

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gruhno/caseforge/internal/store"
)

// ErrContextUnavailable is returned when a node has no description and no
// ancestor with a description. The caller decides whether to skip the node or
// proceed with name-only context.
var ErrContextUnavailable = errors.New("node has insufficient data to build context")

// descriptionLimit caps how much of each ancestor description is quoted.
const descriptionLimit = 200

// NodeSource is the subset of store operations the builder needs.
type NodeSource interface {
	GetAncestors(ctx context.Context, id int64) ([]store.ProcessNode, error)
	ListChildren(ctx context.Context, parentID int64) ([]store.ProcessNode, error)
	FindCrossModelMatches(ctx context.Context, node *store.ProcessNode) ([]store.ProcessNode, error)
}

// Options control what the context block includes and how large it may grow.
type Options struct {
	// IncludeBranch adds sibling and direct-child names for disambiguation.
	IncludeBranch bool
	// CrossCategory enriches with matching nodes from sibling model variants.
	CrossCategory bool
	// MaxChars bounds the final block. Zero means no bound.
	MaxChars int
}

// Builder assembles context blocks from the node hierarchy.
type Builder struct {
	source NodeSource
}

// New creates a Builder over the given node source.
func New(source NodeSource) *Builder {
	return &Builder{source: source}
}

// Build walks the ancestry of node root-first and renders a context block:
// the hierarchy above the node, the node's own name and description, and any
// optional branch or cross-variant sections. When the block exceeds
// opts.MaxChars, the least specific (most distant) ancestors are dropped
// first; the node's own section is always kept.
func (b *Builder) Build(ctx context.Context, node *store.ProcessNode, opts Options) (string, error) {
	ancestors, err := b.source.GetAncestors(ctx, node.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load ancestors: %w", err)
	}

	if node.Desc() == "" && !anyDescribed(ancestors) {
		return "", fmt.Errorf("node %d [%s]: %w", node.ID, node.Code, ErrContextUnavailable)
	}

	hierarchy := make([]string, 0, len(ancestors))
	for _, a := range ancestors {
		hierarchy = append(hierarchy, formatAncestor(&a))
	}

	var sections []string
	sections = append(sections, formatCurrent(node))

	if opts.IncludeBranch {
		branch, err := b.buildBranch(ctx, node)
		if err != nil {
			return "", err
		}
		if branch != "" {
			sections = append(sections, branch)
		}
	}

	if opts.CrossCategory {
		variants, err := b.buildVariants(ctx, node)
		if err != nil {
			return "", err
		}
		if variants != "" {
			sections = append(sections, variants)
		}
	}

	return assemble(hierarchy, sections, opts.MaxChars), nil
}

// assemble joins the hierarchy and fixed sections, dropping hierarchy entries
// from the root side until the result fits the budget.
func assemble(hierarchy, sections []string, maxChars int) string {
	render := func(h []string) string {
		var sb strings.Builder
		if len(h) > 0 {
			sb.WriteString("Process Hierarchy:\n")
			sb.WriteString(strings.Join(h, "\n"))
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.Join(sections, "\n\n"))
		return sb.String()
	}

	out := render(hierarchy)
	if maxChars <= 0 {
		return out
	}

	for len(out) > maxChars && len(hierarchy) > 0 {
		hierarchy = hierarchy[1:]
		out = render(hierarchy)
	}
	return truncate(out, maxChars)
}

func (b *Builder) buildBranch(ctx context.Context, node *store.ProcessNode) (string, error) {
	var lines []string

	if node.ParentID != nil {
		siblings, err := b.source.ListChildren(ctx, *node.ParentID)
		if err != nil {
			return "", fmt.Errorf("failed to list siblings: %w", err)
		}
		for _, s := range siblings {
			if s.ID == node.ID {
				continue
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s", s.Code, s.Name))
		}
	}

	children, err := b.source.ListChildren(ctx, node.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list children: %w", err)
	}
	for _, c := range children {
		lines = append(lines, fmt.Sprintf("- [%s] %s (subprocess)", c.Code, c.Name))
	}

	if len(lines) == 0 {
		return "", nil
	}
	return "Related Processes:\n" + strings.Join(lines, "\n"), nil
}

func (b *Builder) buildVariants(ctx context.Context, node *store.ProcessNode) (string, error) {
	matches, err := b.source.FindCrossModelMatches(ctx, node)
	if err != nil {
		return "", fmt.Errorf("failed to find cross-model matches: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		line := fmt.Sprintf("- (%s) %s", m.ModelKey, m.Name)
		if d := m.Desc(); d != "" {
			line += ": " + truncate(d, descriptionLimit)
		}
		lines = append(lines, line)
	}
	return "Industry Variants:\n" + strings.Join(lines, "\n"), nil
}

func formatAncestor(n *store.ProcessNode) string {
	indent := strings.Repeat("  ", max(n.Level-1, 0))
	line := fmt.Sprintf("%s[%s] %s", indent, n.Code, n.Name)
	if d := n.Desc(); d != "" {
		line += fmt.Sprintf("\n%s    %s", indent, truncate(d, descriptionLimit))
	}
	return line
}

func formatCurrent(n *store.ProcessNode) string {
	desc := n.Desc()
	if desc == "" {
		desc = "No description provided"
	}
	return fmt.Sprintf("Current Process:\n[%s] %s\nLevel: %d\nDescription: %s",
		n.Code, n.Name, n.Level, desc)
}

func anyDescribed(nodes []store.ProcessNode) bool {
	for _, n := range nodes {
		if n.Desc() != "" {
			return true
		}
	}
	return false
}

// truncate cuts s to at most limit bytes, backing off to the previous rune
// boundary so a multi-byte rune is never split.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
