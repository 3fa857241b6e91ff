package shipwright

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dependency is a named dependency plus the features of it that must be
// enabled, as declared in a CONTROL file's "Build-Depends" field.
type Dependency struct {
	Name     string
	Features []string
}

func parseDependencyList(raw string) []Dependency {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	// Split on top-level commas only, so "curl[ssl, http2]" stays one token.
	var tokens []string
	depth, start := 0, 0
	for i, c := range raw {
		switch c {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				tokens = append(tokens, raw[start:i])
				start = i + 1
			}
		}
	}
	tokens = append(tokens, raw[start:])

	var deps []Dependency
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name := tok
		var features []string
		if idx := strings.Index(tok, "["); idx >= 0 && strings.HasSuffix(tok, "]") {
			name = strings.TrimSpace(tok[:idx])
			inner := tok[idx+1 : len(tok)-1]
			for _, f := range strings.Split(inner, ",") {
				f = strings.TrimSpace(f)
				if f != "" {
					features = append(features, f)
				}
			}
		}
		deps = append(deps, Dependency{Name: name, Features: features})
	}
	return deps
}

func formatDependencyList(deps []Dependency) string {
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		if len(d.Features) == 0 {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", d.Name, strings.Join(d.Features, ", ")))
	}
	return strings.Join(parts, ", ")
}

// FeatureParagraph is one optional feature a port can build.
type FeatureParagraph struct {
	Name         string
	Description  string
	Dependencies []Dependency
}

// SourceControlFile is the parsed port definition: immutable once loaded.
type SourceControlFile struct {
	Name        string
	Version     string
	Description string
	Maintainer  string
	Dependencies []Dependency
	Features    []FeatureParagraph
}

// ParseSourceControlFile builds a SourceControlFile from a CONTROL file's
// paragraphs: the first paragraph is the core, every subsequent paragraph
// must carry a "Feature" field.
func ParseSourceControlFile(paragraphs []*Paragraph) (*SourceControlFile, error) {
	if len(paragraphs) == 0 {
		return nil, &InputError{Msg: "empty CONTROL file"}
	}
	core := paragraphs[0]
	name, ok := core.Get("Source")
	if !ok {
		return nil, &InputError{Msg: "CONTROL missing Source field"}
	}
	version, ok := core.Get("Version")
	if !ok {
		return nil, &InputError{Msg: "CONTROL missing Version field"}
	}

	scf := &SourceControlFile{
		Name:         name,
		Version:      version,
		Description:  core.GetOr("Description", ""),
		Maintainer:   core.GetOr("Maintainer", ""),
		Dependencies: parseDependencyList(core.GetOr("Build-Depends", "")),
	}

	for _, p := range paragraphs[1:] {
		feature, ok := p.Get("Feature")
		if !ok {
			return nil, &InputError{Msg: "feature paragraph missing Feature field"}
		}
		scf.Features = append(scf.Features, FeatureParagraph{
			Name:         feature,
			Description:  p.GetOr("Description", ""),
			Dependencies: parseDependencyList(p.GetOr("Build-Depends", "")),
		})
	}
	return scf, nil
}

// LoadPort reads and parses ports/<name>/CONTROL.
func LoadPort(portsDir, name string) (*SourceControlFile, error) {
	path := filepath.Join(portsDir, name, "CONTROL")
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Msg: fmt.Sprintf("no such port %q: %v", name, err)}
	}
	defer f.Close()

	paragraphs, err := ParseParagraphs(f)
	if err != nil {
		return nil, err
	}
	return ParseSourceControlFile(paragraphs)
}

// AllDependencies returns the core dependencies plus those of the named
// features, deduplicated by package name (features merged).
func (s *SourceControlFile) AllDependencies(features map[string]struct{}) []Dependency {
	byName := make(map[string]*Dependency)
	order := make([]string, 0)
	add := func(deps []Dependency) {
		for _, d := range deps {
			existing, ok := byName[d.Name]
			if !ok {
				copy := d
				byName[d.Name] = &copy
				order = append(order, d.Name)
				continue
			}
			existing.Features = mergeFeatureNames(existing.Features, d.Features)
		}
	}
	add(s.Dependencies)
	for _, feat := range s.Features {
		if _, want := features[feat.Name]; want {
			add(feat.Dependencies)
		}
	}
	out := make([]Dependency, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func mergeFeatureNames(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string{}, a...)
	for _, f := range a {
		seen[f] = struct{}{}
	}
	for _, f := range b {
		if _, ok := seen[f]; !ok {
			out = append(out, f)
			seen[f] = struct{}{}
		}
	}
	return out
}
