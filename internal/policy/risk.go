package policy

import (
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

// riskEnv and riskProgCache lazily compile each policy's riskRules CEL
// expressions, matching the teacher's compile-once cache pattern. Since
// programs are cached by expression text across evaluations, a program
// compiled for one process invocation is only reused within that process.
var (
	riskEnv       *cel.Env
	riskEnvOnce   sync.Once
	riskEnvErr    error
	riskProgMu    sync.RWMutex
	riskProgCache = map[string]cel.Program{}
)

func getRiskEnv() (*cel.Env, error) {
	riskEnvOnce.Do(func() {
		riskEnv, riskEnvErr = cel.NewEnv(
			cel.Variable("command", cel.StringType),
			cel.Variable("adapter", cel.StringType),
			cel.Variable("requester", cel.StringType),
		)
	})
	return riskEnv, riskEnvErr
}

// computeRisk returns the proposal's own declared risk when it has one,
// without evaluating any rule. Otherwise it evaluates pol.RiskRules as
// boolean CEL expressions against the proposal, purely for advisory
// output: a rule that matches escalates the risk tier to "high"; no match
// leaves it at "low". Evaluation errors are swallowed — risk is advisory
// and must never fail a gate.
func computeRisk(pol *proposal.Policy, p *proposal.Proposal) string {
	if p.Risk != "" {
		return p.Risk
	}
	if len(pol.RiskRules) == 0 {
		return "low"
	}

	env, err := getRiskEnv()
	if err != nil {
		return "low"
	}

	input := map[string]interface{}{
		"command":   p.Payload.Command,
		"adapter":   p.Payload.Adapter,
		"requester": p.RequesterID,
	}

	risk := "low"
	for _, rule := range pol.RiskRules {
		matched, err := evalRiskRule(env, rule, input)
		if err != nil {
			continue
		}
		if matched {
			risk = "high"
		}
	}
	return risk
}

func evalRiskRule(env *cel.Env, expr string, input map[string]interface{}) (bool, error) {
	riskProgMu.RLock()
	prg, ok := riskProgCache[expr]
	riskProgMu.RUnlock()

	if !ok {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return false, issues.Err()
		}
		p, err := env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
		if err != nil {
			return false, err
		}
		riskProgMu.Lock()
		riskProgCache[expr] = p
		riskProgMu.Unlock()
		prg = p
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, err
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, nil
	}
	return val, nil
}
