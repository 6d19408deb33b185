package payload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// ScriptTransform wraps a Tengo script as a Transform implementation, so
// users can ship custom payload mutations as .tengo files without
// recompiling.
type ScriptTransform struct {
	name        string
	classes     []Class
	scriptBytes []byte
	compiled    *tengo.Compiled
}

// safeModules are the only Tengo stdlib modules available to scripts.
// No file I/O, no network, no OS access.
var safeModules = stdlib.GetModuleMap("text", "fmt", "math", "times")

const scriptMaxAllocs = 10_000_000

// LoadScriptTransform compiles a .tengo file and extracts its metadata.
// The script must define: name (string), transform (function).
// Optional: classes (array of class strings); absent means all classes.
func LoadScriptTransform(path string) (*ScriptTransform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transform script %s: %w", path, err)
	}

	script := tengo.NewScript(data)
	script.SetImports(safeModules)
	script.SetMaxAllocs(scriptMaxAllocs)

	compiled, err := script.Run()
	if err != nil {
		return nil, fmt.Errorf("compile transform script %s: %w", path, err)
	}

	nameVar := compiled.Get("name")
	if nameVar.IsUndefined() {
		return nil, fmt.Errorf("%w: %s", ErrScriptMissingName, path)
	}
	if compiled.Get("transform").IsUndefined() {
		return nil, fmt.Errorf("%w: %s", ErrScriptMissingTransform, path)
	}

	var classes []Class
	if classesVar := compiled.Get("classes"); !classesVar.IsUndefined() {
		if arr, ok := classesVar.Value().([]interface{}); ok {
			known := DefaultRegistry.Classes()
			for _, v := range arr {
				s, ok := v.(string)
				if !ok {
					continue
				}
				c := Class(strings.ToLower(strings.TrimSpace(s)))
				if !containsClass(known, c) {
					return nil, fmt.Errorf("%w: %q in %s", ErrScriptUnknownClass, s, path)
				}
				classes = append(classes, c)
			}
		}
	}

	st := &ScriptTransform{
		name:        nameVar.String(),
		classes:     classes,
		scriptBytes: data,
	}
	if err := st.precompile(); err != nil {
		return nil, err
	}
	return st, nil
}

func containsClass(cs []Class, c Class) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

// precompile wraps the script so Apply only needs Clone(). Compile (not
// Run) keeps the transform function from being invoked at load time.
func (s *ScriptTransform) precompile() error {
	wrapper := fmt.Sprintf(`%s
__result__ := transform(__input__)
`, string(s.scriptBytes))

	script := tengo.NewScript([]byte(wrapper))
	script.SetImports(safeModules)
	script.SetMaxAllocs(scriptMaxAllocs)
	_ = script.Add("__input__", "")

	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("precompile transform %s: %w", s.name, err)
	}
	s.compiled = compiled
	return nil
}

// Name returns the script-declared transform name.
func (s *ScriptTransform) Name() string { return s.name }

// Classes returns the script-declared class scope, nil meaning all.
func (s *ScriptTransform) Classes() []Class { return s.classes }

// Apply runs the script's transform function on the payload value. Any
// script failure leaves the value unchanged, which the registry then
// drops as a no-op variant.
func (s *ScriptTransform) Apply(value string) (result string) {
	result = value

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("payload script panic", "transform", s.name, "panic", r)
			result = value
		}
	}()

	c := s.compiled.Clone()
	if err := c.Set("__input__", value); err != nil {
		return value
	}
	if err := c.Run(); err != nil {
		slog.Debug("payload script error", "transform", s.name, "error", err)
		return value
	}

	out := c.Get("__result__")
	if out.IsUndefined() {
		return value
	}
	return out.String()
}

// LoadScriptDir loads all .tengo files from a directory. Files that fail
// to load are reported without preventing the rest from loading.
func LoadScriptDir(dir string) ([]*ScriptTransform, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read script dir %s: %w", dir, err)}
	}

	var transforms []*ScriptTransform
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tengo") {
			continue
		}
		st, err := LoadScriptTransform(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		transforms = append(transforms, st)
	}
	return transforms, errs
}
