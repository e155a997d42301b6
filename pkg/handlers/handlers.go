// Package handlers contains the built-in task type implementations. Each
// handler registers itself from init, so importing this package for side
// effects populates the default registry.
package handlers

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// decodeParams decodes a task's parameter mapping into a handler's typed
// input struct. Unknown parameter names are rejected so a typo fails the
// step instead of being silently ignored.
func decodeParams(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to build parameter decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
