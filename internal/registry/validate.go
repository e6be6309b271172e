package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// validate checks that every type's connection spec, iterables and joins
// refer to declared fields, and that default producers exist.
func (r *Registry) validate() error {
	var errs []string
	for _, t := range r.Types() {
		fields := make([]string, 0, len(t.Connections))
		for f := range t.Connections {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, field := range fields {
			src := t.Connections[field]
			if !t.HasInput(field) {
				errs = append(errs, fmt.Sprintf("step type '%s': default connection for undeclared input '%s'", t.Name, field))
			}
			if src.Key == "setup" || src.Key == "config" {
				continue
			}
			producer, ok := r.types[src.Key]
			if !ok {
				errs = append(errs, fmt.Sprintf("step type '%s': input '%s' defaults to unknown producer '%s'", t.Name, field, src.Key))
				continue
			}
			if !producer.HasOutput(src.Field) {
				errs = append(errs, fmt.Sprintf("step type '%s': input '%s' defaults to '%s.%s', which is not an output", t.Name, field, src.Key, src.Field))
			}
		}
		for _, f := range t.Iterables {
			if !t.HasInput(f) {
				errs = append(errs, fmt.Sprintf("step type '%s': iterable '%s' is not an input", t.Name, f))
			}
			if t.IsJoin(f) {
				errs = append(errs, fmt.Sprintf("step type '%s': '%s' cannot both iterate and join", t.Name, f))
			}
		}
		for _, f := range t.Joins {
			if !t.HasInput(f) {
				errs = append(errs, fmt.Sprintf("step type '%s': join '%s' is not an input", t.Name, f))
			}
		}
	}
	if len(errs) > 0 {
		return errors.New("registry validation failed:\n" + strings.Join(errs, "\n"))
	}
	return nil
}
