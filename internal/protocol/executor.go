// Package protocol dispatches connector queries to protocol clients.
package protocol

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/errors"
)

// Protocol names, as used in resource configuration.
const (
	SNMP  = "snmp"
	SSH   = "ssh"
	HTTP  = "http"
	WMI   = "wmi"
	WBEM  = "wbem"
	IPMI  = "ipmi"
	NVML  = "nvml"
	Local = "local"
)

// Operation tells an executor what kind of query it receives.
type Operation string

const (
	OpGet     Operation = "get"
	OpGetNext Operation = "getNext"
	OpTable   Operation = "table"
	OpCommand Operation = "command"
	OpRequest Operation = "request"
	OpQuery   Operation = "query"
)

// Query is one request against a resource.
type Query struct {
	Protocol  string
	Operation Operation
	// Text is the OID, command line, request path or query string.
	Text      string
	Columns   []string
	Namespace string
	Method    string
	Header    map[string]string
	Body      string
	// Timeout overrides the protocol's configured timeout.
	Timeout time.Duration
}

func (q Query) String() string {
	return q.Protocol + " " + string(q.Operation) + " " + q.Text
}

// Result is the raw answer of a protocol client.
type Result struct {
	Raw  string
	Rows [][]string
}

// Target is the endpoint an executor talks to.
type Target struct {
	Hostname string
	Local    bool
	Config   config.Protocol
}

// Executor runs queries of one protocol family.
type Executor interface {
	Execute(ctx context.Context, target Target, q Query) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, target Target, q Query) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, target Target, q Query) (Result, error) {
	return f(ctx, target, q)
}

type registration struct {
	executor  Executor
	hostLimit bool
	implicit  bool
}

// RegisterOption tunes how the Dispatcher runs an executor.
type RegisterOption func(*registration)

// WithHostLimit bounds concurrent queries per host with the dispatcher's
// HostLimiter.
func WithHostLimit() RegisterOption {
	return func(r *registration) {
		r.hostLimit = true
	}
}

// WithoutConfiguration lets the protocol run on resources that do not
// configure it, with a zero Protocol configuration.
func WithoutConfiguration() RegisterOption {
	return func(r *registration) {
		r.implicit = true
	}
}

// Dispatcher routes queries to the executor registered for their protocol,
// after checking that the resource configures it.
type Dispatcher struct {
	mu        sync.RWMutex
	executors map[string]registration
	limiter   *HostLimiter
}

// NewDispatcher returns an empty dispatcher. A nil limiter disables host
// limiting.
func NewDispatcher(limiter *HostLimiter) *Dispatcher {
	return &Dispatcher{
		executors: make(map[string]registration),
		limiter:   limiter,
	}
}

// Register installs e for the protocol, replacing any previous executor.
func (d *Dispatcher) Register(protocol string, e Executor, opts ...RegisterOption) {
	r := registration{executor: e}
	for _, opt := range opts {
		opt(&r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[strings.ToLower(protocol)] = r
}

// Supports reports whether q can run against resource: an executor exists
// and the protocol is configured or needs no configuration.
func (d *Dispatcher) Supports(resource *config.Resource, protocol string) bool {
	r, ok := d.registration(protocol)
	return ok && (r.implicit || resource.HasProtocol(protocol))
}

func (d *Dispatcher) registration(protocol string) (registration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.executors[strings.ToLower(protocol)]
	return r, ok
}

// Execute runs q against resource within the protocol's timeout.
func (d *Dispatcher) Execute(ctx context.Context, resource *config.Resource, q Query) (Result, error) {
	errFactory := errors.New()

	cfg, configured := resource.Protocol(q.Protocol)
	r, ok := d.registration(q.Protocol)
	if !ok {
		return Result{}, errFactory.WithData(ErrNoExecutor, q.Protocol)
	}
	if !configured && !r.implicit {
		return Result{}, errFactory.WithData(ErrNotConfigured, q.Protocol+" on "+resource.ID)
	}

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = cfg.EffectiveTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.hostLimit && d.limiter != nil {
		release, err := d.limiter.Acquire(ctx, resource.Hostname)
		if err != nil {
			return Result{}, err
		}
		defer release()
	}

	target := Target{
		Hostname: resource.Hostname,
		Local:    resource.IsLocalhost(),
		Config:   cfg,
	}
	result, err := r.executor.Execute(ctx, target, q)
	if err != nil {
		if _, coded := err.(errors.Error); coded {
			return Result{}, err
		}
		return Result{}, errFactory.Wrap(ErrExecution, err).WithData(q.String())
	}
	return result, nil
}

// CommandProtocol returns the protocol a command line runs over: the local
// shell for local execution or localhost, SSH otherwise.
func CommandProtocol(resource *config.Resource, executeLocally bool) string {
	if executeLocally || resource.IsLocalhost() {
		return Local
	}
	return SSH
}
