package device

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EffectEnv 是执行器作用表达式的执行环境。
// 表达式对每个传感器求值一次，结果是叠加到该传感器上的增量。
//
//	Sensor.Type == "temperature" ? 0.5 : 0
type EffectEnv struct {
	Actuator ActuatorView
	Sensor   SensorView
}

type ActuatorView struct {
	Type string
	ID   string
	On   bool
}

type SensorView struct {
	Type  string
	ID    string
	Value float64
	Min   float64
	Max   float64
}

// CompileEffect 编译作用表达式，空表达式返回 NoEffect
//
// 输入:
//   - code: expr 表达式，结果必须是数值
//
// 输出:
//   - Effect: 可挂到执行器上的作用钩子
//   - error: 编译错误
func CompileEffect(code string) (Effect, error) {
	if code == "" {
		return NoEffect, nil
	}
	program, err := expr.Compile(code, expr.Env(EffectEnv{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("编译执行器作用表达式失败: %w", err)
	}
	return exprEffect(program), nil
}

func exprEffect(program *vm.Program) Effect {
	return func(a Actuator, sensors []Sensor) {
		env := EffectEnv{Actuator: ActuatorView{Type: a.Type(), ID: a.ID(), On: a.State()}}
		for _, s := range sensors {
			env.Sensor = SensorView{
				Type:  s.Type(),
				ID:    s.ID(),
				Value: s.CurrentValue(),
				Min:   s.Min(),
				Max:   s.Max(),
			}
			out, err := expr.Run(program, env)
			if err != nil {
				continue
			}
			if delta, ok := out.(float64); ok && delta != 0 {
				s.Adjust(delta)
			}
		}
	}
}
