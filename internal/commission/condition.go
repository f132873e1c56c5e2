// internal/commission/condition.go
package commission

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Policies may carry a CEL boolean expression as an extra scope predicate,
// e.g. `order_amount >= 50000.0 && "summer" in tags`.

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
	programs   sync.Map // expression -> cel.Program
)

func conditionEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("order_amount", cel.DoubleType),
			cel.Variable("currency", cel.StringType),
			cel.Variable("category", cel.StringType),
			cel.Variable("tags", cel.ListType(cel.StringType)),
			cel.Variable("customer_is_new", cel.BoolType),
			cel.Variable("partner_tier", cel.StringType),
			cel.Variable("partner_id", cel.StringType),
			cel.Variable("product_id", cel.StringType),
			cel.Variable("supplier_id", cel.StringType),
		)
	})
	return celEnv, celEnvErr
}

// CompileCondition parses and type-checks expr and caches the program.
func CompileCondition(expr string) (cel.Program, error) {
	if prg, ok := programs.Load(expr); ok {
		return prg.(cel.Program), nil
	}

	env, err := conditionEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to build condition environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	programs.Store(expr, prg)
	return prg, nil
}

// EvaluateCondition runs expr against ctx. An empty expression is true.
func EvaluateCondition(expr string, ctx Context) (bool, error) {
	if expr == "" {
		return true, nil
	}

	prg, err := CompileCondition(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(conditionVars(ctx))
	if err != nil {
		return false, err
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition must evaluate to bool, got %T", out.Value())
	}
	return result, nil
}

func conditionVars(ctx Context) map[string]interface{} {
	amount, _ := ctx.OrderAmount.Float64()
	tags := ctx.Tags
	if tags == nil {
		tags = []string{}
	}
	vars := map[string]interface{}{
		"order_amount":    amount,
		"currency":        ctx.Currency,
		"category":        ctx.Category,
		"tags":            tags,
		"customer_is_new": ctx.CustomerIsNew,
		"partner_tier":    string(ctx.PartnerTier),
		"partner_id":      ctx.PartnerID.String(),
		"product_id":      "",
		"supplier_id":     "",
	}
	if ctx.ProductID != nil {
		vars["product_id"] = ctx.ProductID.String()
	}
	if ctx.SupplierID != nil {
		vars["supplier_id"] = ctx.SupplierID.String()
	}
	return vars
}
