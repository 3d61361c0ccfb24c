// Package parser reads item documents: Markdown files whose YAML frontmatter
// describes one canvas item and its outgoing structural edges.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/version"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// ErrNoFrontmatter is returned for documents without a frontmatter block.
var ErrNoFrontmatter = errors.New("parser: missing frontmatter")

type edgeSpec struct {
	Target   string `yaml:"target"`
	Relation string `yaml:"relation"`
}

type frontmatter struct {
	ID      string     `yaml:"id"`
	Type    string     `yaml:"type"`
	Version string     `yaml:"version"`
	Label   string     `yaml:"label"`
	ReqID   string     `yaml:"req_id"`
	Edges   []edgeSpec `yaml:"edges"`
}

// Result holds one parsed item document.
type Result struct {
	Item  models.Item
	Edges []models.StructuralEdge
	Body  string
}

// Parse decodes an item document. name is the document path and supplies
// the id when the frontmatter has none.
func Parse(name string, data []byte) (*Result, error) {
	block, body, ok := splitFrontmatter(data)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFrontmatter, name)
	}
	var fm frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, fmt.Errorf("parser: %s: %w", name, err)
	}

	it := models.Item{
		ID:      strings.TrimSpace(fm.ID),
		Type:    models.ItemType(strings.ToLower(strings.TrimSpace(fm.Type))),
		Version: version.Normalize(fm.Version),
		Label:   strings.TrimSpace(fm.Label),
		ReqID:   strings.TrimSpace(fm.ReqID),
	}
	if it.ID == "" {
		it.ID = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	if !it.Type.Valid() {
		return nil, fmt.Errorf("parser: %s: unknown item type %q", name, fm.Type)
	}
	if it.Version == "" {
		it.Version = version.Initial
	}
	if !version.Valid(it.Version) {
		return nil, fmt.Errorf("parser: %s: invalid version %q", name, fm.Version)
	}

	seen := make(map[models.StructuralEdge]struct{})
	var edges []models.StructuralEdge
	add := func(e models.StructuralEdge) {
		if e.Target == "" || e.Target == it.ID {
			return
		}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	for _, fe := range fm.Edges {
		rel := strings.ToLower(strings.TrimSpace(fe.Relation))
		if rel == "" {
			rel = models.RelationContains
		}
		add(models.StructuralEdge{Source: it.ID, Target: strings.TrimSpace(fe.Target), RelationType: rel})
	}
	for _, target := range extractLinks(body) {
		add(models.StructuralEdge{Source: it.ID, Target: target, RelationType: models.RelationRelated})
	}

	return &Result{Item: it, Edges: edges, Body: body}, nil
}

// splitFrontmatter separates the YAML block between leading --- delimiters
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return rest[:idx], body, true
}

// extractLinks returns deduplicated wikilink targets. [[Target|Alias]]
// yields Target.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// Render writes an item and its outgoing edges back into document form.
// Related edges are rendered as frontmatter edges, not wikilinks, so the
// body is kept as given.
func Render(it models.Item, edges []models.StructuralEdge, body string) ([]byte, error) {
	fm := frontmatter{
		ID:      it.ID,
		Type:    string(it.Type),
		Version: it.Version,
		Label:   it.Label,
		ReqID:   it.ReqID,
	}
	linked := make(map[string]struct{})
	for _, target := range extractLinks(body) {
		linked[target] = struct{}{}
	}
	for _, e := range edges {
		if e.Source != it.ID {
			continue
		}
		if _, inBody := linked[e.Target]; inBody && e.RelationType == models.RelationRelated {
			continue
		}
		fm.Edges = append(fm.Edges, edgeSpec{Target: e.Target, Relation: e.RelationType})
	}
	block, err := yaml.Marshal(renderable(fm))
	if err != nil {
		return nil, fmt.Errorf("parser: render %s: %w", it.ID, err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(block)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// renderable drops empty optional keys from the rendered frontmatter.
func renderable(fm frontmatter) map[string]any {
	out := map[string]any{
		"id":      fm.ID,
		"type":    fm.Type,
		"version": fm.Version,
	}
	if fm.Label != "" {
		out["label"] = fm.Label
	}
	if fm.ReqID != "" {
		out["req_id"] = fm.ReqID
	}
	if len(fm.Edges) > 0 {
		out["edges"] = fm.Edges
	}
	return out
}
