package transform

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/preview"
)

// FuncName is the global function a script must define.
const FuncName = "transform"

// DefaultTimeout bounds one script call.
const DefaultTimeout = 250 * time.Millisecond

// LuaOption configures a Lua transform.
type LuaOption func(*Lua)

// WithTimeout sets the per-call execution timeout. Zero disables it.
func WithTimeout(d time.Duration) LuaOption {
	return func(l *Lua) {
		l.timeout = d
	}
}

// WithLogger sets the logger for script failures.
func WithLogger(logger *logging.Logger) LuaOption {
	return func(l *Lua) {
		l.log = logging.OrNop(logger).WithComponent("lua")
	}
}

// Lua runs a preview transform written in Lua.
//
// The script runs with the base, table, string and math libraries only.
// It must define transform(content, mode) returning a string. The state
// is not goroutine-safe, so calls are serialized.
type Lua struct {
	mu      sync.Mutex
	L       *lua.LState
	fn      lua.LValue
	timeout time.Duration
	log     *logging.Logger
	calls   uint64
	fails   uint64
	closed  bool
}

// NewLua compiles script and resolves its transform function.
func NewLua(script string, opts ...LuaOption) (*Lua, error) {
	l := &Lua{timeout: DefaultTimeout, log: logging.Nop()}
	for _, opt := range opts {
		opt(l)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("transform: load script: %w", err)
	}
	fn := L.GetGlobal(FuncName)
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, ErrNoTransformFunc
	}

	l.L = L
	l.fn = fn
	return l, nil
}

// LoadLua reads a script from path and compiles it.
func LoadLua(path string, opts ...LuaOption) (*Lua, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transform: read script: %w", err)
	}
	return NewLua(string(data), opts...)
}

// openSafeLibraries opens the libraries a script may use and removes the
// base functions that load code.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Call runs the script on content and returns its result or error.
func (l *Lua) Call(content string, mode preview.Mode) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", ErrClosed
	}
	l.calls++

	if l.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		l.L.SetContext(ctx)
		defer l.L.RemoveContext()
	}

	top := l.L.GetTop()
	err := l.L.CallByParam(lua.P{Fn: l.fn, NRet: 1, Protect: true},
		lua.LString(content), lua.LString(string(mode)))
	if err != nil {
		l.L.SetTop(top)
		l.fails++
		return "", fmt.Errorf("transform: script: %w", err)
	}

	ret := l.L.Get(-1)
	l.L.SetTop(top)
	switch v := ret.(type) {
	case lua.LString:
		return string(v), nil
	case *lua.LNilType:
		return "", nil
	default:
		l.fails++
		return "", fmt.Errorf("transform: script returned %s, want string", ret.Type())
	}
}

// Transform satisfies preview.Transform. Script errors render as error
// text.
func (l *Lua) Transform(content string, mode preview.Mode) string {
	out, err := l.Call(content, mode)
	if err != nil {
		l.log.Warn("%v", err)
		return ErrorText(err)
	}
	return out
}

// Calls returns the number of script calls and how many failed.
func (l *Lua) Calls() (calls, failures uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls, l.fails
}

// Close releases the interpreter.
func (l *Lua) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.L.Close()
	l.closed = true
	return nil
}
