package sink

import (
	"fmt"

	"nodelink/internal/pkg"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// FilterEnv 是过滤表达式的执行环境
type FilterEnv struct {
	Sample pkg.Sample
}

// CompileFilter 编译过滤表达式，空表达式返回 nil 表示全部接收
func CompileFilter(code string) (*vm.Program, error) {
	if code == "" {
		return nil, nil
	}
	program, err := expr.Compile(code, expr.Env(FilterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("编译过滤表达式失败: %w", err)
	}
	return program, nil
}

// Match 判断采样点是否通过过滤
func Match(program *vm.Program, s pkg.Sample) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, FilterEnv{Sample: s})
	if err != nil {
		return false, fmt.Errorf("执行过滤表达式失败: %w", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
