// Package lua loads Lua scripts as custom anti-spam rules. A script must
// define a "check" function taking a request table (subject, text fields) and
// returning a boolean (triggered) and a string (details).
package lua

import (
	"fmt"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/wamod/wa-guard/lib/antispam"
)

// Checker runs Lua scripts as antispam.CheckFunc rules.
type Checker struct {
	vm       *lua.LState
	checkers map[string]*lua.LFunction
	lock     sync.Mutex // a single Lua VM is not reentrant
}

// NewChecker creates a new Checker with an empty script registry.
func NewChecker() *Checker {
	return &Checker{
		vm:       lua.NewState(),
		checkers: make(map[string]*lua.LFunction),
	}
}

// LoadScript loads a Lua script and registers it under its base file name
// without extension.
func (c *Checker) LoadScript(path string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.vm.DoFile(path); err != nil {
		return fmt.Errorf("failed to load lua script: %w", err)
	}

	checkFunc := c.vm.GetGlobal("check")
	fn, ok := checkFunc.(*lua.LFunction)
	if !ok {
		return fmt.Errorf("script %s must define a 'check' function", path)
	}

	name := filepath.Base(path)
	name = name[:len(name)-len(filepath.Ext(name))]
	c.checkers[name] = fn
	return nil
}

// LoadDirectory loads all *.lua scripts from a directory.
func (c *Checker) LoadDirectory(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return fmt.Errorf("failed to list lua scripts in %s: %w", dir, err)
	}
	for _, file := range files {
		if err := c.LoadScript(file); err != nil {
			return fmt.Errorf("failed to load script %s: %w", file, err)
		}
	}
	return nil
}

// Names returns the names of all loaded checkers.
func (c *Checker) Names() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	res := make([]string, 0, len(c.checkers))
	for name := range c.checkers {
		res = append(res, name)
	}
	return res
}

// GetCheck returns the named script as an antispam.CheckFunc.
func (c *Checker) GetCheck(name string) (antispam.CheckFunc, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fn, ok := c.checkers[name]
	if !ok {
		return nil, fmt.Errorf("lua checker %q not found", name)
	}
	return c.makeCheck(fn), nil
}

// makeCheck wraps a Lua function into an antispam.CheckFunc. Script errors
// never trigger the rule.
func (c *Checker) makeCheck(fn *lua.LFunction) antispam.CheckFunc {
	return func(subject, text string) (bool, string) {
		c.lock.Lock()
		defer c.lock.Unlock()

		req := c.vm.NewTable()
		req.RawSetString("subject", lua.LString(subject))
		req.RawSetString("text", lua.LString(text))

		if err := c.vm.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, req); err != nil {
			return false, "error executing lua checker: " + err.Error()
		}

		triggered := c.vm.ToBool(-2)
		details := c.vm.ToString(-1)
		c.vm.Pop(2)
		return triggered, details
	}
}

// Close cleans up the Lua VM.
func (c *Checker) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.vm.Close()
}
