// Package orchestrate executes the set of endpoint operations that fulfil
// one logical resource operation, in dependency order, against the remote
// API. Failure is fail-fast: completed steps are never rolled back.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/vergate/vergate/internal/convert"
	"github.com/vergate/vergate/internal/domain"
)

// Caller performs one remote call. The persistent API client implements it;
// tests substitute fakes.
type Caller interface {
	Do(ctx context.Context, method, path string, payload domain.Record) (domain.Record, error)
}

// Orchestrator runs dependency-ordered endpoint operations.
type Orchestrator struct {
	caller Caller
	logger *slog.Logger
}

// New creates an orchestrator calling through the given caller.
func New(caller Caller, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{caller: caller, logger: logger}
}

var paramPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Execute filters the operations to those participating in action, sorts
// them topologically by depends_on (ties broken by ascending order, then
// name), and runs them in sequence. The returned record is the response of
// the primary operation: the first executed operation with no dependency.
// Responses of all operations are also recorded in tc.Results for later
// transform stages.
func (o *Orchestrator) Execute(ctx context.Context, operations []domain.EndpointOperation, wire domain.Record, tc *convert.Context, action domain.Operation) (domain.Record, error) {
	selected := make([]domain.EndpointOperation, 0, len(operations))
	for _, op := range operations {
		if op.AppliesTo(action) {
			selected = append(selected, op)
		}
	}
	if len(selected) == 0 {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("no endpoint operations configured for %s", action))
	}

	ordered, err := sortOperations(selected)
	if err != nil {
		return nil, err
	}

	if tc.Results == nil {
		tc.Results = make(map[string]domain.Record)
	}
	params := make(map[string]string)
	var primary domain.Record
	havePrimary := false

	for _, op := range ordered {
		path, err := substitutePath(op.Path, params, wire)
		if err != nil {
			return nil, err
		}

		payload := make(domain.Record)
		for _, f := range op.Fields {
			// Dotted field names address nested wire structure; the payload
			// must reproduce that nesting, not carry dotted literal keys.
			if v, ok := convert.GetPath(wire, f); ok && v != nil {
				convert.SetPath(payload, f, v)
			}
		}

		o.logger.Debug("executing endpoint operation",
			slog.String("operation", op.Name),
			slog.String("method", op.Method),
			slog.String("path", path))

		resp, err := o.caller.Do(ctx, op.Method, path, payload)
		if err != nil {
			// Fail fast: remaining operations never run, completed ones stay
			// applied.
			return nil, domain.ToServiceError(err).WithStep(op.Name)
		}

		tc.Results[op.Name] = resp
		captureParams(params, resp)

		if op.DependsOn == "" && !havePrimary {
			primary = resp
			havePrimary = true
		}
	}

	if !havePrimary {
		// Every selected operation declared a dependency; fall back to the
		// last response so the caller still receives the terminal result.
		primary = tc.Results[ordered[len(ordered)-1].Name]
	}
	return primary, nil
}

// sortOperations topologically sorts by depends_on, breaking ties among
// ready operations by ascending order and then name. A cycle is fatal and
// detected before any remote call is attempted.
func sortOperations(ops []domain.EndpointOperation) ([]domain.EndpointOperation, error) {
	byName := make(map[string]domain.EndpointOperation, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}

	indegree := make(map[string]int, len(ops))
	dependents := make(map[string][]string, len(ops))
	for _, op := range ops {
		if _, ok := indegree[op.Name]; !ok {
			indegree[op.Name] = 0
		}
		if op.DependsOn == "" {
			continue
		}
		if _, ok := byName[op.DependsOn]; !ok {
			return nil, domain.ErrCircularDependency(fmt.Sprintf(
				"operation %q depends on unknown operation %q", op.Name, op.DependsOn))
		}
		indegree[op.Name]++
		dependents[op.DependsOn] = append(dependents[op.DependsOn], op.Name)
	}

	var ready []domain.EndpointOperation
	for _, op := range ops {
		if indegree[op.Name] == 0 {
			ready = append(ready, op)
		}
	}

	ordered := make([]domain.EndpointOperation, 0, len(ops))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].Order != ready[j].Order {
				return ready[i].Order < ready[j].Order
			}
			return ready[i].Name < ready[j].Name
		})
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, dep := range dependents[next.Name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, byName[dep])
			}
		}
	}

	if len(ordered) != len(ops) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, domain.ErrCircularDependency(fmt.Sprintf(
			"cyclic depends_on graph involving %s", strings.Join(stuck, ", ")))
	}
	return ordered, nil
}

// substitutePath resolves {param} placeholders. Parameters produced by
// earlier operations take precedence; wire record fields serve as the
// fallback so find/update/delete paths can address the record itself. An
// unresolved token is a fatal configuration error.
func substitutePath(path string, params map[string]string, wire domain.Record) (string, error) {
	var missing []string
	resolved := paramPattern.ReplaceAllStringFunc(path, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := params[name]; ok {
			return v
		}
		if v, ok := convert.GetPath(wire, name); ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		missing = append(missing, name)
		return tok
	})
	if len(missing) > 0 {
		return "", domain.ErrInvalidRequest(fmt.Sprintf(
			"path %q has unresolved parameters: %s", path, strings.Join(missing, ", ")))
	}
	return resolved, nil
}

// captureParams records identifier-looking fields from a response for use in
// later path substitution. The create step's "id" is the common case.
func captureParams(params map[string]string, resp domain.Record) {
	for k, v := range resp {
		if v == nil {
			continue
		}
		if k == "id" || strings.HasSuffix(k, "_id") {
			params[k] = formatParam(v)
		}
	}
}

// formatParam renders an identifier for URL use. JSON numbers decode as
// float64; integral values must not pick up a decimal point.
func formatParam(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", v)
}
