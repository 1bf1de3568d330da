package classify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Group is a named set of candidate issue labels.
type Group struct {
	Name   string   `yaml:"name" json:"name"`
	Labels []string `yaml:"labels" json:"labels"`
}

// Taxonomy is the fixed candidate label set of the issue classifier.
type Taxonomy struct {
	Groups []Group `yaml:"groups" json:"groups"`

	index map[string]struct{}
}

// DefaultTaxonomy returns the built-in civic issue categories.
func DefaultTaxonomy() *Taxonomy {
	t := &Taxonomy{Groups: []Group{
		{Name: "infrastructure", Labels: []string{
			"pothole",
			"broken streetlight",
			"damaged road",
			"water leakage",
			"overflowing garbage",
			"sewage issue",
			"construction hazard",
			"traffic signal not working",
			"illegal parking",
			"blocked drain",
		}},
		{Name: "utilities", Labels: []string{
			"electricity outage",
			"water shortage",
			"gas leakage",
			"telephone line down",
			"internet outage",
		}},
		{Name: "environmental", Labels: []string{
			"air pollution",
			"noise pollution",
			"tree fallen",
			"animal nuisance",
			"mosquito breeding",
		}},
		{Name: "safety", Labels: []string{
			"fire hazard",
			"accident spot",
			"unsafe building",
			"broken bridge",
			"open manhole",
		}},
		{Name: "public services", Labels: []string{
			"public transport issue",
			"healthcare issue",
			"education issue",
			"government office complaint",
			"corruption",
		}},
		{Name: "misc", Labels: []string{
			"theft",
			"harassment",
			"other",
		}},
	}}
	if err := t.build(); err != nil {
		panic(err)
	}
	return t
}

// LoadTaxonomy reads a YAML taxonomy file of the form
//
//	groups:
//	  - name: infrastructure
//	    labels: [pothole, damaged road]
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes and validates a YAML taxonomy.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if err := t.build(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Taxonomy) build() error {
	t.index = make(map[string]struct{})
	for gi, g := range t.Groups {
		for li, raw := range g.Labels {
			label := strings.TrimSpace(raw)
			if label == "" {
				return fmt.Errorf("taxonomy: group %q has an empty label", g.Name)
			}
			key := strings.ToLower(label)
			if _, dup := t.index[key]; dup {
				return fmt.Errorf("taxonomy: duplicate label %q", label)
			}
			t.index[key] = struct{}{}
			t.Groups[gi].Labels[li] = label
		}
	}
	if len(t.index) == 0 {
		return errors.New("taxonomy: no labels")
	}
	return nil
}

// Labels returns all candidate labels in declaration order.
func (t *Taxonomy) Labels() []string {
	var out []string
	for _, g := range t.Groups {
		out = append(out, g.Labels...)
	}
	return out
}

// Contains reports whether label is a candidate, ignoring case.
func (t *Taxonomy) Contains(label string) bool {
	_, ok := t.index[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// Canonical returns the declared spelling of label, or "" when it is not a candidate.
func (t *Taxonomy) Canonical(label string) string {
	want := strings.ToLower(strings.TrimSpace(label))
	for _, l := range t.Labels() {
		if strings.ToLower(l) == want {
			return l
		}
	}
	return ""
}
