package level

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ScriptTimeout bounds how long a level script may run
var ScriptTimeout = 2 * time.Second

// RunScript evaluates JavaScript that builds a level through these globals:
//
//	name(s)                          set the level name
//	size(w, h)                       set the board size
//	segment(ax, ay, bx, by[, nx, ny]) add one segment
//	box(cx, cy, w, h)                add a square obstacle
//	bounds(w, h)                     add walls around the board
//
// Each run uses a fresh runtime.
func RunScript(code string) (*Level, error) {
	vm := goja.New()
	l := &Level{Name: "script", Width: DefaultSize, Height: DefaultSize}

	timer := time.AfterFunc(ScriptTimeout, func() {
		vm.Interrupt("level script timed out")
	})
	defer timer.Stop()

	set := func(name string, fn interface{}) error {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
		return nil
	}
	bindings := map[string]interface{}{
		"name": func(s string) { l.Name = s },
		"size": func(w, h float64) {
			l.Width, l.Height = w, h
		},
		"segment": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) != 4 && len(call.Arguments) != 6 {
				panic(vm.NewTypeError("segment expects 4 or 6 numbers, got %d", len(call.Arguments)))
			}
			s := Segment{
				AX: call.Argument(0).ToFloat(),
				AY: call.Argument(1).ToFloat(),
				BX: call.Argument(2).ToFloat(),
				BY: call.Argument(3).ToFloat(),
			}
			if len(call.Arguments) == 6 {
				s.NX = call.Argument(4).ToFloat()
				s.NY = call.Argument(5).ToFloat()
			}
			l.Segments = append(l.Segments, s)
			return goja.Undefined()
		},
		"box": func(cx, cy, w, h float64) {
			l.Segments = append(l.Segments, Box(cx, cy, w, h)...)
		},
		"bounds": func(w, h float64) {
			l.Segments = append(l.Segments, Bounds(w, h)...)
		},
	}
	for name, fn := range bindings {
		if err := set(name, fn); err != nil {
			return nil, err
		}
	}

	if _, err := vm.RunString(code); err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("script produced invalid level: %w", err)
	}
	return l, nil
}
