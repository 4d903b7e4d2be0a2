package query

import (
	"context"
	"fmt"
	"io"
	"os"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"gopkg.in/yaml.v3"
)

// Scenario is one scripted question used to validate a deployment.
type Scenario struct {
	Label           string
	Question        string
	Filter          brtypes.RetrievalFilter
	NumberOfResults int32
	SearchType      string
}

// FilterSpec is the YAML-friendly representation of a metadata filter.
// Exactly one field should be set per node.
type FilterSpec struct {
	Equals          *AttributeSpec `yaml:"equals,omitempty"`
	GreaterOrEquals *AttributeSpec `yaml:"greater_or_equals,omitempty"`
	AndAll          []FilterSpec   `yaml:"and_all,omitempty"`
}

// AttributeSpec is a key/value pair inside a filter clause.
type AttributeSpec struct {
	Key   string      `yaml:"key"`
	Value interface{} `yaml:"value"`
}

// scenarioSpec is the YAML shape of one scenario entry.
type scenarioSpec struct {
	Label           string      `yaml:"label"`
	Question        string      `yaml:"question"`
	Filter          *FilterSpec `yaml:"filter,omitempty"`
	NumberOfResults int32       `yaml:"number_of_results,omitempty"`
	SearchType      string      `yaml:"search_type,omitempty"`
}

// Build converts the YAML representation into a service filter.
func (f *FilterSpec) Build() (brtypes.RetrievalFilter, error) {
	switch {
	case f.Equals != nil:
		if f.Equals.Key == "" {
			return nil, fmt.Errorf("equals filter requires a key")
		}
		return Equals(f.Equals.Key, f.Equals.Value), nil
	case f.GreaterOrEquals != nil:
		if f.GreaterOrEquals.Key == "" {
			return nil, fmt.Errorf("greater_or_equals filter requires a key")
		}
		value, ok := toFloat(f.GreaterOrEquals.Value)
		if !ok {
			return nil, fmt.Errorf("greater_or_equals filter requires a numeric value, got %T", f.GreaterOrEquals.Value)
		}
		return GreaterOrEquals(f.GreaterOrEquals.Key, value), nil
	case len(f.AndAll) > 0:
		conditions := make([]brtypes.RetrievalFilter, 0, len(f.AndAll))
		for i := range f.AndAll {
			condition, err := f.AndAll[i].Build()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, condition)
		}
		return AndAll(conditions...), nil
	default:
		return nil, fmt.Errorf("filter requires one of equals, greater_or_equals, and_all")
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// LoadScenarios reads a YAML scenario file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var specs []scenarioSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}

	scenarios := make([]Scenario, 0, len(specs))
	for i, spec := range specs {
		if spec.Question == "" {
			return nil, fmt.Errorf("scenario %d: question is required", i)
		}
		scenario := Scenario{
			Label:           spec.Label,
			Question:        spec.Question,
			NumberOfResults: spec.NumberOfResults,
			SearchType:      spec.SearchType,
		}
		if scenario.Label == "" {
			scenario.Label = fmt.Sprintf("Scenario %d", i+1)
		}
		if spec.Filter != nil {
			filter, err := spec.Filter.Build()
			if err != nil {
				return nil, fmt.Errorf("scenario %q: %w", scenario.Label, err)
			}
			scenario.Filter = filter
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}

// DefaultScenarios returns the built-in suite exercising metadata filters
// against the sample document set.
func DefaultScenarios() []Scenario {
	domain := Equals("domain", "auroradynamics.com")
	internalTrue := EqualsBool("is_internal", true)
	internalFalse := EqualsBool("is_internal", false)
	securityTags := Equals("tags", "security,governance")
	pressTags := Equals("tags", "press,announcement")
	publishedAfter2025 := GreaterOrEquals("published_at", 1_750_000_000)
	metricsTags := Equals("tags", "metrics,operations")
	catalogTags := Equals("tags", "services,catalog")

	return []Scenario{
		{
			Label:    "No filter overview",
			Question: "Give me a broad overview of Aurora Dynamics as described in our knowledge base.",
		},
		{
			Label:    "Domain filter",
			Question: "Summarize the public description of Aurora Dynamics.",
			Filter:   domain,
		},
		{
			Label:    "Internal security docs",
			Question: "What security governance guidance is available?",
			Filter:   AndAll(internalTrue, securityTags),
		},
		{
			Label:    "Press announcement",
			Question: "What recent announcement did Aurora make?",
			Filter:   AndAll(internalFalse, pressTags, publishedAfter2025),
		},
		{
			Label:    "Metrics spotlight",
			Question: "Share key operational metrics for Aurora Dynamics.",
			Filter:   AndAll(internalTrue, metricsTags),
		},
		{
			Label:    "Catalog lookup (hybrid search)",
			Question: "List the solution offerings Aurora provides to customers.",
			Filter:   catalogTags,
		},
	}
}

// RunScenarios executes each scenario in order, writing answers and cited
// sources to w. A failing scenario is reported and does not stop the rest.
func (c *Client) RunScenarios(ctx context.Context, scenarios []Scenario, w io.Writer) error {
	fmt.Fprintln(w, "Running scripted knowledge base checks…")

	for _, scenario := range scenarios {
		answer, err := c.Ask(ctx, scenario.Question, Options{
			Filter:          scenario.Filter,
			NumberOfResults: scenario.NumberOfResults,
			SearchType:      scenario.SearchType,
		})
		fmt.Fprintf(w, "=== %s ===\n", scenario.Label)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(w, "Query failed: %v\n\n", err)
			continue
		}

		fmt.Fprintln(w, answer.Text)
		if len(answer.Citations) == 0 {
			fmt.Fprintln(w, "(no citations returned)")
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, "Sources:")
		for _, citation := range answer.Citations {
			fmt.Fprintf(w, "  - %s: %s\n", citation.URI, citation.Preview)
		}
		fmt.Fprintln(w)
	}
	return nil
}
