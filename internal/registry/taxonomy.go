package registry

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
)

// Cue sources
const (
	CueSourceHTML     = "html"
	CueSourceText     = "text"
	CueSourceProducts = "products"
)

//go:embed defaults/taxonomy.yaml
var defaultTaxonomyYAML []byte

// Taxonomy holds the keyword cues and operator rules of every category
type Taxonomy struct {
	Categories map[domain.Category]*CategoryRules `yaml:"categories"`

	// BehavioralTags maps a behavioral tag to the lowercased HTML markers that imply it
	BehavioralTags map[domain.BehavioralTag][]string `yaml:"behavioral_tags"`
}

// CategoryRules holds the configurable evidence for one category
type CategoryRules struct {
	Cues  []Cue  `yaml:"cues"`
	Rules []Rule `yaml:"rules"`
}

// Cue is a weighted keyword cue matched against a lowercased evidence source
type Cue struct {
	Name   string   `yaml:"name"`
	Weight float64  `yaml:"weight"`
	Source string   `yaml:"source"`
	Any    []string `yaml:"any"`
}

// Rule is a weighted boolean expression evaluated against RuleEnv
type Rule struct {
	Name       string  `yaml:"name"`
	Weight     float64 `yaml:"weight"`
	Expression string  `yaml:"expression"`

	program *vm.Program
}

// RuleEnv is the environment operator rules are evaluated against
type RuleEnv struct {
	Host               string
	Text               string
	HTML               string
	ProductCount       int
	VendorCount        int
	DigitalRatio       float64
	ProductTypes       []string
	Tags               []string
	PlatformStatus     string
	PlatformConfidence float64
	HealthStatus       string
	Metadata           map[string]any
}

// Eval evaluates the rule against env
func (r *Rule) Eval(env RuleEnv) (bool, error) {
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Category returns the rules of a category, never nil
func (t *Taxonomy) Category(c domain.Category) *CategoryRules {
	if rules, ok := t.Categories[c]; ok && rules != nil {
		return rules
	}
	return &CategoryRules{}
}

// LoadTaxonomy loads the taxonomy from a YAML file, or the built-in taxonomy
// when filePath is empty
func LoadTaxonomy(filePath string) (*Taxonomy, error) {
	data := defaultTaxonomyYAML
	if filePath != "" {
		var err error
		data, err = os.ReadFile(filePath) //nolint:gosec,G304 // This should be a trusted file
		if err != nil {
			return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
		}
	}

	return ParseTaxonomy(data)
}

// ParseTaxonomy parses the taxonomy YAML, validates it and compiles its rules
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy YAML: %w", err)
	}

	for category, rules := range t.Categories {
		if !domain.IsValidCategory(category) {
			return nil, fmt.Errorf("unknown category %q", category)
		}
		if rules == nil {
			continue
		}

		for i := range rules.Cues {
			cue := &rules.Cues[i]
			if err := validateWeight(category, cue.Name, cue.Weight); err != nil {
				return nil, err
			}
			switch cue.Source {
			case CueSourceHTML, CueSourceText, CueSourceProducts:
			default:
				return nil, fmt.Errorf("%s/%s: unknown cue source %q", category, cue.Name, cue.Source)
			}
			if len(cue.Any) == 0 {
				return nil, fmt.Errorf("%s/%s: cue has no keywords", category, cue.Name)
			}
			cue.Any = lowerAll(cue.Any)
		}

		for i := range rules.Rules {
			rule := &rules.Rules[i]
			if err := validateWeight(category, rule.Name, rule.Weight); err != nil {
				return nil, err
			}
			program, err := expr.Compile(rule.Expression, expr.Env(RuleEnv{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%s/%s: failed to compile rule: %w", category, rule.Name, err)
			}
			rule.program = program
		}
	}

	for tag, markers := range t.BehavioralTags {
		if len(markers) == 0 {
			return nil, fmt.Errorf("behavioral tag %s has no markers", tag)
		}
		t.BehavioralTags[tag] = lowerAll(markers)
	}

	return &t, nil
}

func validateWeight(category domain.Category, name string, weight float64) error {
	if name == "" {
		return fmt.Errorf("%s: cue or rule name is required", category)
	}
	if weight <= 0 || weight > 1 {
		return fmt.Errorf("%s/%s: weight must be in (0, 1]", category, name)
	}
	return nil
}
