package control

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"flexible-assembly-sim/internal/types"
)

// releaseRule 是可选的订单放行规则
// 规则是一个 expr 表达式，可以访问 order 的字段，
// 求值为 false 时订单在下达环节被直接取消
type releaseRule struct {
	source  string
	program *vm.Program
}

func ruleEnv(order types.Order) map[string]interface{} {
	return map[string]interface{}{"order": order}
}

// compileReleaseRule 编译规则表达式，空规则返回 nil
func compileReleaseRule(source string) (*releaseRule, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(ruleEnv(types.Order{})))
	if err != nil {
		return nil, fmt.Errorf("rule compilation failed: %w", err)
	}
	return &releaseRule{source: source, program: program}, nil
}

// evaluate 对单条订单求值，返回是否放行
// 求值失败时放行订单并返回错误，规则问题不应阻塞生产
func (r *releaseRule) evaluate(order types.Order) (bool, error) {
	result, err := expr.Run(r.program, ruleEnv(order))
	if err != nil {
		return true, fmt.Errorf("rule execution failed: %w", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return true, fmt.Errorf("rule result is not a boolean")
	}
	return allowed, nil
}
