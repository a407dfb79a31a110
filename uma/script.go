package uma

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

const (
	maxScriptLength = 4096
	scriptCostLimit = 100000
)

// ScriptInput is what a rule script can see.
type ScriptInput struct {
	ClientID      string
	Scopes        []string
	Claims        map[string]any
	ResourceSetID string
	ResourceOwner string
}

// ScriptEvaluator runs PolicyRule.Script as a CEL predicate, for example
//
//	"admin" in claims.role && client_id.startsWith("app-")
//
// Compiled programs are cached by source. Safe for concurrent use.
type ScriptEvaluator struct {
	env      *cel.Env
	programs sync.Map // source -> cel.Program
}

func NewScriptEvaluator() (*ScriptEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("client_id", cel.StringType),
		cel.Variable("scopes", cel.ListType(cel.StringType)),
		cel.Variable("claims", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource_set_id", cel.StringType),
		cel.Variable("resource_owner", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewScriptEvaluator] cel.NewEnv")
	}
	return &ScriptEvaluator{env: env}, nil
}

// Compile checks a script and caches its program.
func (s *ScriptEvaluator) Compile(script string) (cel.Program, error) {
	if p, ok := s.programs.Load(script); ok {
		return p.(cel.Program), nil
	}
	if len(script) > maxScriptLength {
		return nil, errors.Errorf("script length %d exceeds maximum of %d", len(script), maxScriptLength)
	}

	parsed, issues := s.env.Parse(script)
	if issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "script does not parse")
	}
	checked, issues := s.env.Check(parsed)
	if issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "script does not type check")
	}
	if out := checked.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("script must return bool, returns %s", out)
	}

	program, err := s.env.Program(checked, cel.CostLimit(scriptCostLimit))
	if err != nil {
		return nil, errors.Wrap(err, "script program")
	}
	s.programs.Store(script, program)
	return program, nil
}

// Evaluate runs script against input.
func (s *ScriptEvaluator) Evaluate(script string, input ScriptInput) (bool, error) {
	program, err := s.Compile(script)
	if err != nil {
		return false, err
	}

	claims := input.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	scopes := input.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	out, _, err := program.Eval(map[string]any{
		"client_id":       input.ClientID,
		"scopes":          scopes,
		"claims":          claims,
		"resource_set_id": input.ResourceSetID,
		"resource_owner":  input.ResourceOwner,
	})
	if err != nil {
		return false, errors.Wrap(err, "script evaluation")
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("script returned %T, expected bool", out.Value())
	}
	return result, nil
}
