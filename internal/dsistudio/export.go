package dsistudio

import (
	"strings"
)

// composeExports collapses the explicit export list and the per-metric
// export_* switches into one ordered token list. Explicit entries come
// first, switches follow in table order and a report token goes last.
func composeExports(action *ActionSpec, values Values) ([]string, error) {
	var tokens []string
	seen := map[string]bool{}
	add := func(tok string) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}

	report := action.reportable() && boolValue(values, "export_report")
	if values.IsSet("export") {
		explicit, err := checkStrings(action.Name, "export", values["export"])
		if err != nil {
			return nil, err
		}
		for _, tok := range explicit {
			if tok == "report" && action.reportable() {
				report = true
				continue
			}
			if !contains(action.Exports, tok) {
				return nil, invalid(action.Name, "export", "%q cannot be exported by action %q", tok, action.Name)
			}
			add(tok)
		}
	}
	for _, tok := range action.Exports {
		if boolValue(values, "export_"+tok) {
			add(tok)
		}
	}

	if report {
		parts := []string{"report"}
		for _, field := range []string{"report_val", "report_pstyle", "report_bandwidth"} {
			if !values.IsSet(field) {
				return nil, invalid(action.Name, field, "required when a report is exported")
			}
			checked, err := check(action.Name, optionIndex[field], values[field])
			if err != nil {
				return nil, err
			}
			parts = append(parts, render(field, checked))
		}
		add(strings.Join(parts, ":"))
	}
	return tokens, nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
