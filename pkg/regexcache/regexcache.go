// Package regexcache provides a process-wide cache of compiled regular
// expressions. Signature tables across the oracle and challenge detector
// share patterns; compiling each once keeps the hot probe path cheap.
package regexcache

import (
	"regexp"
	"sync"
)

// cache maps pattern strings to compiled expressions.
var cache sync.Map

// Get returns the compiled regexp for pattern, compiling and caching it on
// first use.
func Get(pattern string) (*regexp.Regexp, error) {
	if cached, ok := cache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// MustGet returns the compiled regexp for pattern and panics on an invalid
// pattern. Use only with literal patterns.
func MustGet(pattern string) *regexp.Regexp {
	re, err := Get(pattern)
	if err != nil {
		panic(err)
	}
	return re
}
