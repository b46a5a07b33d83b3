package invoke

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ArgValidator checks tool-call arguments against the tool's declared input
// schema before the call is forwarded. Compiled schemas are cached keyed by
// the schema text itself, so a server re-registering an unchanged tool hits
// the cache and a changed schema recompiles naturally.
type ArgValidator struct {
	mu    sync.RWMutex
	cache map[string]*gojsonschema.Schema
}

// NewArgValidator creates a validator with an empty cache.
func NewArgValidator() *ArgValidator {
	return &ArgValidator{
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// Validate checks args against schema. A nil or empty schema accepts
// anything. The returned error message lists every violation.
func (v *ArgValidator) Validate(schema json.RawMessage, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("invalid input schema: %w", err)
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("argument validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(violations, "; "))
}

func (v *ArgValidator) compile(schema json.RawMessage) (*gojsonschema.Schema, error) {
	key := string(schema)

	v.mu.RLock()
	compiled, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()

	return compiled, nil
}
