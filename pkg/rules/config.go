package rules

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yml
var defaultsFS embed.FS

const (
	DefaultSecurityFile = "secure_coding.yml"
	DefaultStyleFile    = "style_patterns.yml"
)

// ErrDuplicateID is returned in strict mode when a rule ID repeats.
var ErrDuplicateID = errors.New("duplicate rule ID")

// Config is a rule file. Files may also be a bare sequence of rules.
type Config struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig defines a rule as written in a rule file
type RuleConfig struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	Pattern     string `yaml:"pattern,omitempty"`
	Severity    string `yaml:"severity,omitempty"`
	CheckTool   string `yaml:"check_tool,omitempty"`
	Example     string `yaml:"example,omitempty"`
	Callee      string `yaml:"callee,omitempty"`
}

// LoadOptions controls how rule files are turned into a Set.
type LoadOptions struct {
	// Strict turns schema violations and duplicate IDs into errors.
	Strict bool
	Logger *zap.Logger
}

// ParseConfig decodes a rule file. An empty document yields no rules.
func ParseConfig(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
	}

	var config Config
	if len(doc.Content) == 0 {
		return &config, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&config.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	case yaml.ScalarNode:
		if root.Tag != "!!null" {
			return nil, fmt.Errorf("failed to decode rules: unexpected scalar document")
		}
	}
	return &config, nil
}

// Build turns a decoded rule file into rules of the given category.
// Problems with individual rules are logged and never fail the build,
// except duplicate IDs in strict mode.
func Build(config *Config, category Category, opts LoadOptions) ([]Rule, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]bool, len(config.Rules))
	out := make([]Rule, 0, len(config.Rules))
	for _, rc := range config.Rules {
		r := New(rc, category)
		log := logger.With(zap.String("rule", r.ID), zap.String("category", string(category)))

		if seen[r.ID] {
			if opts.Strict {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
			}
			log.Warn("duplicate rule ID, both rules will run")
		}
		seen[r.ID] = true

		if !r.Severity.Known() {
			log.Warn("unknown severity, weighted as MEDIUM", zap.String("severity", string(r.Severity)))
		}
		switch r.Kind {
		case KindPattern:
			if r.Err() != nil {
				log.Warn("invalid pattern, rule disabled", zap.Error(r.Err()))
			} else if r.Pattern == "" {
				log.Warn("pattern rule without pattern, rule disabled")
			}
		case KindStructural:
			if r.Family() == FamilyNone {
				log.Warn("no structural check for rule, rule disabled")
			}
		default:
			log.Warn("unknown check_tool, rule disabled", zap.String("kind", string(r.Kind)))
		}
		out = append(out, r)
	}
	return out, nil
}

// Parse validates and builds one rule file's contents.
func Parse(data []byte, category Category, opts LoadOptions) ([]Rule, error) {
	if err := Validate(data); err != nil {
		if opts.Strict {
			return nil, err
		}
		if opts.Logger != nil {
			opts.Logger.Warn("rule file does not match schema", zap.String("category", string(category)), zap.Error(err))
		}
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return Build(config, category, opts)
}

// LoadFile reads one rule file. An empty path selects the embedded
// default pack for the category.
func LoadFile(file string, category Category, opts LoadOptions) ([]Rule, error) {
	var (
		data []byte
		err  error
	)
	if file == "" {
		data, err = defaultsFS.ReadFile(path.Join("defaults", defaultFile(category)))
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	rules, err := Parse(data, category, opts)
	if err != nil {
		if file == "" {
			file = "default " + string(category) + " rules"
		}
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return rules, nil
}

// Load builds the rule set of a run from a security and a style rule file.
func Load(securityPath, stylePath string, opts LoadOptions) (*Set, error) {
	sec, err := LoadFile(securityPath, CategorySecurity, opts)
	if err != nil {
		return nil, err
	}
	style, err := LoadFile(stylePath, CategoryStyle, opts)
	if err != nil {
		return nil, err
	}
	return &Set{Security: sec, Style: style}, nil
}

func defaultFile(category Category) string {
	if category == CategorySecurity {
		return DefaultSecurityFile
	}
	return DefaultStyleFile
}
