package payload

import "errors"

// Sentinel errors for script transform loading. Callers can use errors.Is
// to distinguish malformed scripts from unreadable files.
var (
	// ErrScriptMissingName is returned when a script defines no 'name' variable.
	ErrScriptMissingName = errors.New("payload: script missing 'name' variable")

	// ErrScriptMissingTransform is returned when a script defines no 'transform' function.
	ErrScriptMissingTransform = errors.New("payload: script missing 'transform' function")

	// ErrScriptUnknownClass is returned when a script's 'classes' list names
	// a class no generator is registered for.
	ErrScriptUnknownClass = errors.New("payload: script references unknown class")
)
