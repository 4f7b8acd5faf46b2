package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OptionalPrefix marks a system name as optional. An optional system that
// cannot be resolved is skipped instead of failing initialization.
const OptionalPrefix = "!"

// ErrMalformed is returned when a phases document does not have the
// blocks -> rows -> system names shape.
var ErrMalformed = errors.New("malformed phases document")

// Source yields the ordered block -> row -> system name layout.
type Source interface {
	Blocks() ([][][]string, error)
}

// Static is a Source backed by an in-memory layout.
type Static [][][]string

// Blocks returns a deep copy of the layout.
func (s Static) Blocks() ([][][]string, error) {
	out := make([][][]string, len(s))
	for b, rows := range s {
		out[b] = make([][]string, len(rows))
		for r, names := range rows {
			out[b][r] = append([]string(nil), names...)
		}
	}
	return out, nil
}

// SystemSpec binds a system name to a built-in kind and its parameters.
type SystemSpec struct {
	Kind       string        `yaml:"kind"`
	Duration   time.Duration `yaml:"duration,omitempty"`
	Iterations int           `yaml:"iterations,omitempty"`
	Script     string        `yaml:"script,omitempty"`
}

// PhasesFile is a parsed phases document.
type PhasesFile struct {
	Path    string
	Layout  [][][]string
	Systems map[string]SystemSpec
}

// Blocks implements Source.
func (f *PhasesFile) Blocks() ([][][]string, error) {
	return Static(f.Layout).Blocks()
}

type rawPhases struct {
	Blocks  yaml.Node             `yaml:"blocks"`
	Systems map[string]SystemSpec `yaml:"systems"`
}

// LoadPhases reads and validates a phases document from path.
func LoadPhases(path string) (*PhasesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phases %s: %w", path, err)
	}
	f, err := ParsePhases(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// ParsePhases parses a phases document.
func ParsePhases(data []byte) (*PhasesFile, error) {
	var raw rawPhases
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Blocks.Kind == 0 {
		return nil, fmt.Errorf("%w: missing blocks", ErrMalformed)
	}

	layout, err := decodeLayout(&raw.Blocks)
	if err != nil {
		return nil, err
	}

	for name, spec := range raw.Systems {
		if strings.HasPrefix(name, OptionalPrefix) {
			return nil, fmt.Errorf("%w: systems.%s: system names must not carry the %q prefix", ErrMalformed, name, OptionalPrefix)
		}
		if spec.Kind == "" {
			return nil, fmt.Errorf("%w: systems.%s: missing kind", ErrMalformed, name)
		}
	}

	return &PhasesFile{Layout: layout, Systems: raw.Systems}, nil
}

// decodeLayout walks the blocks node so shape errors can name their location.
func decodeLayout(n *yaml.Node) ([][][]string, error) {
	if err := expectSeq(n, "blocks"); err != nil {
		return nil, err
	}
	layout := make([][][]string, 0, len(n.Content))
	for b, bn := range n.Content {
		bpath := fmt.Sprintf("blocks[%d]", b)
		if err := expectSeq(bn, bpath); err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(bn.Content))
		for r, rn := range bn.Content {
			rpath := fmt.Sprintf("%s[%d]", bpath, r)
			if err := expectSeq(rn, rpath); err != nil {
				return nil, err
			}
			names := make([]string, 0, len(rn.Content))
			for s, sn := range rn.Content {
				spath := fmt.Sprintf("%s[%d]", rpath, s)
				if sn.Kind == yaml.ScalarNode && strings.HasPrefix(sn.Tag, OptionalPrefix) && !strings.HasPrefix(sn.Tag, "!!") {
					return nil, fmt.Errorf("%w: %s (line %d): optional system %s must be quoted", ErrMalformed, spath, sn.Line, sn.Tag)
				}
				if sn.Kind != yaml.ScalarNode || sn.ShortTag() != "!!str" {
					return nil, fmt.Errorf("%w: %s (line %d): expected system name, got %s", ErrMalformed, spath, sn.Line, describe(sn))
				}
				name := strings.TrimSpace(sn.Value)
				if name == "" || name == OptionalPrefix {
					return nil, fmt.Errorf("%w: %s (line %d): empty system name", ErrMalformed, spath, sn.Line)
				}
				names = append(names, name)
			}
			rows = append(rows, names)
		}
		layout = append(layout, rows)
	}
	return layout, nil
}

func expectSeq(n *yaml.Node, path string) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: %s (line %d): expected list, got %s", ErrMalformed, path, n.Line, describe(n))
	}
	return nil
}

func describe(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "list"
	case yaml.AliasNode:
		return "alias"
	case yaml.ScalarNode:
		return fmt.Sprintf("%s %q", strings.TrimPrefix(n.ShortTag(), "!!"), n.Value)
	}
	return "nothing"
}
