// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrMissingField reports a reference to a field absent from a
// published mapping. It surfaces at step-execution time: at
// chain-construction time the mapping does not exist yet, so the
// error cannot be detected earlier.
var ErrMissingField = errors.New("settings: missing field")

// Reference is a lazy pointer to one field of the mapping published
// by an earlier step. It holds no value. A Reference is created at
// chain-construction time, embedded in a task definition, and
// resolved by the runner immediately before the owning step executes,
// after the producing step has completed for the same run.
type Reference struct {
	// Step is the identifier of the step whose published mapping
	// holds the field.
	Step string

	// Field is the setting name to read.
	Field string
}

// Ref returns a Reference to field in the mapping published by the
// step with the given identifier.
func Ref(stepID, field string) Reference {
	return Reference{Step: stepID, Field: field}
}

// String returns the placeholder form of the reference as it appears
// in command text.
func (r Reference) String() string {
	return "${" + r.Field + "}"
}

// Lookup reads the referenced field from a published mapping. A
// missing field returns an error wrapping ErrMissingField that names
// the step and field; it is never a silent empty string.
func (r Reference) Lookup(mapping Settings) (string, error) {
	value, exists := mapping[r.Field]
	if !exists {
		return "", fmt.Errorf("%w: step %q published no field %q", ErrMissingField, r.Step, r.Field)
	}
	return value, nil
}

// referencePattern matches ${NAME} placeholders. Only the braced form
// is recognized; bare $NAME is left for shell interpretation.
// Names must start with a letter or underscore and contain only
// letters, digits, and underscores.
var referencePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render replaces ${NAME} placeholders in input with values from the
// map. Names absent from the map are left untouched for the shell:
// the bootstrap protocol deliberately lets the re-sourced canonical
// env file supply variables this run never set, so an unknown braced
// name is not an error here. Hard failure for declared-but-missing
// fields happens in Reference.Lookup before Render is called.
func Render(input string, values map[string]string) string {
	return referencePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, exists := values[name]; exists {
			return value
		}
		return match
	})
}

// ReferencedNames returns the distinct ${NAME} placeholder names in
// input, in order of first appearance.
func ReferencedNames(input string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range referencePattern.FindAllStringSubmatch(input, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
