package router

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harperlabs/concierge/pkg/models"
)

// Rule is one keyword predicate. Rules are evaluated in declaration
// order and the first match wins, so earlier-declared worker types take
// priority over later ones. That ordering is a deliberate, documented
// policy: reminder phrasing often contains research-sounding words
// ("remind me to look up..."), so communication is declared first.
type Rule struct {
	// WorkerType is the routing target when the rule matches.
	WorkerType models.WorkerType `yaml:"worker_type"`
	// TaskKind is the kind tag assigned on match.
	TaskKind string `yaml:"task_kind"`
	// Confidence is the static confidence for this predicate category.
	// It is a coarse signal, not a calibrated probability.
	Confidence float64 `yaml:"confidence"`
	// Keywords are matched case-insensitively as substrings.
	Keywords []string `yaml:"keywords"`
}

// DefaultRules returns the built-in predicate table.
func DefaultRules() []Rule {
	return []Rule{
		{
			WorkerType: models.WorkerCommunication,
			TaskKind:   "reminder",
			Confidence: 0.85,
			Keywords: []string{
				"remind",
				"reminder",
				"don't let me forget",
				"alert me",
			},
		},
		{
			WorkerType: models.WorkerCommunication,
			TaskKind:   "message",
			Confidence: 0.80,
			Keywords: []string{
				"send a message",
				"send an email",
				"email ",
				"reply to",
				"follow up with",
			},
		},
		{
			WorkerType: models.WorkerProspects,
			TaskKind:   "search",
			Confidence: 0.80,
			Keywords: []string{
				"prospect",
				"leads",
				"find clients",
				"find companies",
				"potential customers",
			},
		},
		{
			WorkerType: models.WorkerResearch,
			TaskKind:   "summary",
			Confidence: 0.75,
			Keywords: []string{
				"research",
				"look up",
				"look into",
				"summarize",
				"what is",
				"tell me about",
				"find out",
				"compare",
			},
		},
	}
}

// LoadRules reads a rule table from a YAML file. The file fully
// replaces the built-in table; ordering in the file is the priority
// ordering.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	for i, rule := range rules {
		if !rule.WorkerType.Valid() || rule.WorkerType == models.WorkerRouter {
			return nil, fmt.Errorf("rules file %s: rule %d has invalid worker type %q", path, i, rule.WorkerType)
		}
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("rules file %s: rule %d has no keywords", path, i)
		}
	}
	return rules, nil
}

// matchRule returns the first rule whose keywords match the message,
// along with the matched keyword.
func matchRule(rules []Rule, message string) (*Rule, string) {
	lower := strings.ToLower(message)
	for i := range rules {
		for _, kw := range rules[i].Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return &rules[i], kw
			}
		}
	}
	return nil, ""
}
