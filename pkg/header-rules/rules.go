package headerrules

import (
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Target is what the server decided to send for a request.
type Target string

const (
	TargetFile   Target = "file"
	TargetEntry  Target = "entry"
	TargetWorker Target = "worker"
)

type Rules []Rule

type Rule struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	Suffix string `yaml:"suffix"`
	// Only match responses of this target; empty matches all.
	Target   Target            `yaml:"target"`
	Default  string            `yaml:"default"`
	Override string            `yaml:"override"`
	Query    map[string]string `yaml:"query"`
	Headers  map[string]string `yaml:"headers"`
}

// Defaults are used when no rules file is configured.
// Vite emits content-hashed bundles under /assets/, everything else is revalidated.
var Defaults = Rules{
	Rule{Target: TargetEntry, Override: "no-cache"},
	Rule{Target: TargetWorker, Override: "no-cache"},
	Rule{Prefix: "/assets/", Target: TargetFile, Default: "public, max-age=31536000, immutable"},
	Rule{Target: TargetFile, Default: "no-cache"},
}

// Load reads rules from a yaml file with a top-level `rules` list.
func Load(filename string) (Rules, error) {
	var config struct {
		Rules Rules `yaml:"rules"`
	}
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config.Rules, err
}

// Apply sets the headers of the first rule matching the request and target.
func (r Rules) Apply(req *http.Request, header http.Header, target Target) {
	if rule := r.find(req, target); rule != nil {
		applyRuleToHeader(*rule, header)
	}
}

func applyRuleToHeader(rule Rule, header http.Header) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && header.Get("Cache-Control") == "" {
		log.Trace().Msg("Applying default Cache-Control header")
		header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		header.Set(name, value)
	}
}

func (r Rules) find(req *http.Request, target Target) *Rule {
	log.Trace().Msgf("Finding rule for request %s:%s (%s)", req.Method, req.URL.Path, target)
rulesLoop:
	for _, rule := range r {
		if rule.Target != "" && rule.Target != target {
			continue
		}
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if rule.Suffix != "" && !strings.HasSuffix(req.URL.Path, rule.Suffix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &rule
	}
	return nil
}
