// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"os"
	"reflect"

	"github.com/spf13/pflag"
)

// JSONOutput is embedded in a command's options to add --json output.
// Commands register the flag with [JSONOutput.AddFlag] and call
// [JSONOutput.EmitJSON] before their text formatting.
type JSONOutput struct {
	OutputJSON bool
}

// AddFlag registers --json on flagSet.
func (j *JSONOutput) AddFlag(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&j.OutputJSON, "json", false, "output as JSON")
}

// EmitJSON writes result as indented JSON to stdout if --json is set.
// Returns (true, nil) on success, (true, err) on write failure, or
// (false, nil) when --json is not set and the caller should proceed
// with text formatting.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(os.Stdout, normalizeNilSlice(result))
}

// WriteJSON marshals value as indented JSON to w.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice, so that JSON output is [] instead of null.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
