package sweep

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Policy decides how a sweep reports failures of individual items.
type Policy int

const (
	// WaitAll waits for every item and reports the first failure.
	WaitAll Policy = iota
	// BestEffort waits for every item, logs each failure and reports all of them.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case WaitAll:
		return "wait"
	case BestEffort:
		return "best-effort"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "wait", "wait-all", "":
		return WaitAll, nil
	case "best-effort", "besteffort":
		return BestEffort, nil
	}
	return 0, fmt.Errorf("unknown sweep policy %q", s)
}

// Set implements pflag.Value.
func (p *Policy) Set(s string) error {
	parsed, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Type implements pflag.Value.
func (p *Policy) Type() string {
	return "policy"
}

type Option func(*options)

type options struct {
	policy      Policy
	logger      zerolog.Logger
	runID       string
	caches      bool
	workers     bool
	concurrency int
}

func newOptions(opts []Option) options {
	o := options{
		policy:      WaitAll,
		logger:      log.Logger,
		caches:      true,
		workers:     true,
		concurrency: -1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger for status lines. The global zerolog logger is used by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRunID tags every log line of the sweep. A random uuid is used by default.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// WithCaches enables or disables deleting caches.
func WithCaches(enabled bool) Option {
	return func(o *options) { o.caches = enabled }
}

// WithWorkers enables or disables unregistering service workers.
func WithWorkers(enabled bool) Option {
	return func(o *options) { o.workers = enabled }
}

// WithConcurrency limits the number of in-flight deletions. n <= 0 means no limit.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = -1
		}
		o.concurrency = n
	}
}
