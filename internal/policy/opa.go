// Package policy decides with OPA whether a relay caller may reach a
// provider. Rego modules define data.universe.policy.allow and
// data.universe.policy.reason over Input.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/enterprise-universe/universe-gateway/internal/config"
)

const query = "[data.universe.policy.allow, data.universe.policy.reason]"

// Input is the document sent to OPA for evaluation.
type Input struct {
	Caller Caller `json:"caller"`
	Call   Call   `json:"call"`
	Time   Time   `json:"time"`
}

type Caller struct {
	KeyID string `json:"key_id"`
	User  string `json:"user"`
	Org   string `json:"org"`
	Team  string `json:"team"`
}

// Call never carries parameter values or bodies; only their names.
type Call struct {
	Provider   string   `json:"provider"`
	Category   string   `json:"category"`
	Name       string   `json:"name"`
	AuthScheme string   `json:"auth_scheme"`
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Params     []string `json:"params"`
	HasBody    bool     `json:"has_body"`
}

type Time struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator evaluates the relay access policy.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a policy evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the bundle path.
func (e *Evaluator) Load(ctx context.Context) error {
	cfg := e.cfg()
	modules, err := ReadModules(os.DirFS(cfg.BundlePath))
	if err != nil {
		return fmt.Errorf("load bundle %s: %w", cfg.BundlePath, err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(ctx, modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from module sources keyed by file name.
func (e *Evaluator) LoadFromModules(ctx context.Context, modules map[string]string) error {
	opts := make([]func(*rego.Rego), 0, len(modules)+1)
	opts = append(opts, rego.Query(query))
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy. It fails closed: without loaded policies, on
// evaluation errors and on malformed results the call is denied.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Decision{Reason: "no policies loaded"}, nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if input.Time.Day == "" {
		now := time.Now().UTC()
		input.Time = Time{Hour: now.Hour(), Day: now.Weekday().String()}
	}

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{Reason: "policy evaluation error"}, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	// Result is [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{Reason: "unexpected policy result format"}, nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}, nil
}
