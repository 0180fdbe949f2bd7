package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/yairfalse/travelgate/canonical"
	"github.com/yairfalse/travelgate/types"
)

const defaultRegoQuery = "data.travelgate.deny"

// buildRegoRule compiles a Rego module once at load. The plan is flagged
// when the query evaluates to true; undefined or false passes.
func buildRegoRule(def Definition) (Rule[types.TripPlan], error) {
	module, err := def.String("module")
	if err != nil {
		return nil, err
	}
	query := defaultRegoQuery
	if def.Has("query") {
		if query, err = def.String("query"); err != nil {
			return nil, err
		}
	}
	message := fmt.Sprintf("Trip plan violates %s", def.Name)
	if def.Has("message") {
		if message, err = def.String("message"); err != nil {
			return nil, err
		}
	}

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(def.Name+".rego", module),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, def.paramError("module", fmt.Sprintf("failed to compile: %v", err))
	}

	return RuleFunc[types.TripPlan](func(plan types.TripPlan) []types.PolicyResult {
		flagged, err := evalRego(prepared, plan)
		if err != nil {
			// An unevaluable policy never passes silently
			return single(def.Result(false,
				fmt.Sprintf("%s could not be evaluated: %v", def.Name, err),
				map[string]any{"query": query, "error": err.Error()}))
		}
		if flagged {
			return single(def.Result(false, message, map[string]any{"query": query}))
		}
		return single(def.Result(true, fmt.Sprintf("Trip plan satisfies %s", def.Name), map[string]any{"query": query}))
	}), nil
}

func evalRego(prepared rego.PreparedEvalQuery, plan types.TripPlan) (bool, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return false, fmt.Errorf("failed to encode plan: %w", err)
	}
	input, err := canonical.Decode(raw)
	if err != nil {
		return false, err
	}

	rs, err := prepared.Eval(context.Background(), rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	value, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("query returned %T, want boolean", rs[0].Expressions[0].Value)
	}
	return value, nil
}
