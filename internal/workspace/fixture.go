package workspace

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML description of a workspace.
// It uses "mapstructure" tags so unknown keys are reported instead of ignored.
type Fixture struct {
	Spaces []SpaceFixture `json:"spaces" mapstructure:"spaces" yaml:"spaces"`
}

type SpaceFixture struct {
	ID          string              `json:"id" mapstructure:"id" yaml:"id"`
	Name        string              `json:"name" mapstructure:"name" yaml:"name"`
	Collections []CollectionFixture `json:"collections" mapstructure:"collections" yaml:"collections"`
}

type CollectionFixture struct {
	ID      string          `json:"id" mapstructure:"id" yaml:"id"`
	Name    string          `json:"name" mapstructure:"name" yaml:"name"`
	Objects []ObjectFixture `json:"objects" mapstructure:"objects" yaml:"objects"`
}

type ObjectFixture struct {
	ID   string     `json:"id" mapstructure:"id" yaml:"id,omitempty"`
	Type string     `json:"type" mapstructure:"type" yaml:"type,omitempty"`
	Name string     `json:"name" mapstructure:"name" yaml:"name"`
	Meta ObjectMeta `json:"meta" mapstructure:"meta" yaml:"meta,omitempty"`
}

// ObjectMeta is free-form presentation data attached to an object.
type ObjectMeta struct {
	Icon   string   `json:"icon" mapstructure:"icon" yaml:"icon,omitempty"`
	Pinned bool     `json:"pinned" mapstructure:"pinned" yaml:"pinned,omitempty"`
	Tags   []string `json:"tags" mapstructure:"tags" yaml:"tags,omitempty"`
}

// Parse decodes a YAML fixture. Objects without an id get one derived from
// their space, collection and name, so ids are stable across reloads.
func Parse(data []byte) (*Fixture, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	var f Fixture
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &f,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}

	seen := make(map[string]bool)
	claim := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s missing id", kind)
		}
		if seen[id] {
			return fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = true
		return nil
	}
	for i := range f.Spaces {
		s := &f.Spaces[i]
		if err := claim("space", s.ID); err != nil {
			return nil, err
		}
		for j := range s.Collections {
			c := &s.Collections[j]
			if err := claim("collection", c.ID); err != nil {
				return nil, err
			}
			for k := range c.Objects {
				o := &c.Objects[k]
				if o.ID == "" {
					o.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.ID+"/"+c.ID+"/"+o.Name)).String()
				}
				if err := claim("object", o.ID); err != nil {
					return nil, err
				}
			}
		}
	}
	return &f, nil
}

// Marshal encodes a fixture as YAML.
func Marshal(f *Fixture) ([]byte, error) {
	return yaml.Marshal(f)
}

// Demo is the fixture used when no workspace file is configured.
const Demo = `
spaces:
  - id: personal
    name: Personal
    collections:
      - id: inbox
        name: Inbox
        objects:
          - name: Groceries
            type: note
            meta: {icon: cart}
          - name: Call the bank
            type: task
            meta: {pinned: true}
      - id: projects
        name: Projects
        objects:
          - name: Garden plan
            type: note
            meta: {tags: [outdoor, spring]}
  - id: team
    name: Team
    collections:
      - id: roadmap
        name: Roadmap
        objects:
          - name: Q3 goals
            type: doc
      - id: archive
        name: Archive
`
