package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Benchmark models the catalog of pillars, metrics and questions an assessment is scored against.
type Benchmark struct {
	Name          string                  `yaml:"name" json:"name"`
	Version       string                  `yaml:"version" json:"version"`
	Labels        []string                `yaml:"labels" json:"labels"`
	Qualification []QualificationQuestion `yaml:"qualification" json:"-"`
	Pillars       []Pillar                `yaml:"pillars" json:"pillars"`
}

type Pillar struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Weight      float64  `yaml:"weight" json:"weight"`
	Metrics     []Metric `yaml:"metrics" json:"metrics"`
}

type Metric struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description,omitempty"`
	Weight      float64    `yaml:"weight" json:"weight"`
	Questions   []Question `yaml:"questions" json:"questions"`
}

type Question struct {
	ID     string `yaml:"id" json:"id"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// QualificationQuestion is a screening question whose options recommend pillars.
type QualificationQuestion struct {
	ID      string                `yaml:"id" json:"id"`
	Prompt  string                `yaml:"prompt" json:"prompt"`
	Helper  string                `yaml:"helper" json:"helper,omitempty"`
	Options []QualificationOption `yaml:"options" json:"options"`
}

type QualificationOption struct {
	Value              string   `yaml:"value" json:"value"`
	Label              string   `yaml:"label" json:"label"`
	RecommendedPillars []string `yaml:"recommended_pillars" json:"recommended_pillars"`
}

// MetricRef locates a metric inside the benchmark.
type MetricRef struct {
	Pillar *Pillar
	Metric *Metric
}

// Validate ensures ids are present and unique in their scope and weights are not negative.
func (b *Benchmark) Validate() error {
	if strings.TrimSpace(b.Version) == "" {
		return fmt.Errorf("catalog.version is required")
	}
	if len(b.Pillars) == 0 {
		return fmt.Errorf("catalog.pillars is required")
	}
	pillarIDs := map[string]bool{}
	metricIDs := map[string]string{}
	for _, p := range b.Pillars {
		if p.ID == "" {
			return fmt.Errorf("pillar with empty id")
		}
		if pillarIDs[p.ID] {
			return fmt.Errorf("duplicate pillar id %s", p.ID)
		}
		pillarIDs[p.ID] = true
		if p.Weight < 0 {
			return fmt.Errorf("pillar %s has negative weight", p.ID)
		}
		for _, m := range p.Metrics {
			if m.ID == "" {
				return fmt.Errorf("pillar %s has metric with empty id", p.ID)
			}
			// Metric ids key the score map, so they must be unique across pillars too.
			if owner, ok := metricIDs[m.ID]; ok {
				return fmt.Errorf("metric id %s used by pillars %s and %s", m.ID, owner, p.ID)
			}
			metricIDs[m.ID] = p.ID
			if m.Weight < 0 {
				return fmt.Errorf("metric %s has negative weight", m.ID)
			}
			if len(m.Questions) == 0 {
				return fmt.Errorf("metric %s has no questions", m.ID)
			}
			questionIDs := map[string]bool{}
			for _, q := range m.Questions {
				if q.ID == "" {
					return fmt.Errorf("metric %s has question with empty id", m.ID)
				}
				if questionIDs[q.ID] {
					return fmt.Errorf("metric %s has duplicate question id %s", m.ID, q.ID)
				}
				questionIDs[q.ID] = true
			}
		}
	}
	questionIDs := map[string]bool{}
	for _, q := range b.Qualification {
		if q.ID == "" {
			return fmt.Errorf("qualification question with empty id")
		}
		if questionIDs[q.ID] {
			return fmt.Errorf("duplicate qualification question %s", q.ID)
		}
		questionIDs[q.ID] = true
		values := map[string]bool{}
		for _, opt := range q.Options {
			if opt.Value == "" {
				return fmt.Errorf("qualification question %s has option with empty value", q.ID)
			}
			if values[opt.Value] {
				return fmt.Errorf("qualification question %s has duplicate option %s", q.ID, opt.Value)
			}
			values[opt.Value] = true
			for _, pid := range opt.RecommendedPillars {
				if !pillarIDs[pid] {
					return fmt.Errorf("qualification option %s/%s recommends unknown pillar %s", q.ID, opt.Value, pid)
				}
			}
		}
	}
	return nil
}

// Pillar returns the pillar with the given id.
func (b *Benchmark) Pillar(id string) (*Pillar, bool) {
	for i := range b.Pillars {
		if b.Pillars[i].ID == id {
			return &b.Pillars[i], true
		}
	}
	return nil, false
}

// Metric looks a metric up by id across all pillars.
func (b *Benchmark) Metric(id string) (MetricRef, bool) {
	for i := range b.Pillars {
		p := &b.Pillars[i]
		for j := range p.Metrics {
			if p.Metrics[j].ID == id {
				return MetricRef{Pillar: p, Metric: &p.Metrics[j]}, true
			}
		}
	}
	return MetricRef{}, false
}

// MetricCount returns the number of metrics in the catalog.
func (b *Benchmark) MetricCount() int {
	n := 0
	for _, p := range b.Pillars {
		n += len(p.Metrics)
	}
	return n
}

// QualificationQuestion returns the screening question with the given id.
func (b *Benchmark) QualificationQuestion(id string) (*QualificationQuestion, bool) {
	for i := range b.Qualification {
		if b.Qualification[i].ID == id {
			return &b.Qualification[i], true
		}
	}
	return nil, false
}

// Default returns the embedded AI Compass benchmark.
func Default() *Benchmark {
	b, err := FromYAML(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return b
}

// FromYAML parses and validates a catalog from raw YAML bytes.
func FromYAML(data []byte) (*Benchmark, error) {
	var b Benchmark
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// FromFile reads a YAML catalog from path.
func FromFile(path string) (*Benchmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Load returns the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Benchmark, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return FromFile(path)
}
