package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/vk/dsipipe/internal/dag"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Plan assembles the pipeline and writes every node with its resolved
// command to w without running anything.
func (a *App) Plan(ctx context.Context, w io.Writer) error {
	g, err := a.Assemble(ctx)
	if err != nil {
		return err
	}
	WritePlan(w, g)
	return nil
}

// WritePlan prints the nodes of g in execution order.
func WritePlan(w io.Writer, g *dag.Graph) {
	for _, n := range g.Nodes() {
		label := n.Instance.Type.QualifiedName()
		if n.Instance.Auto {
			label += ", auto-inserted"
		}
		fmt.Fprintf(w, "%s (%s)\n", n.ID, label)
		if deps := n.Deps(); len(deps) > 0 {
			ids := make([]string, len(deps))
			for i, d := range deps {
				ids[i] = d.ID
			}
			fmt.Fprintf(w, "  after:   %s\n", strings.Join(ids, ", "))
		}
		if n.Plan == nil {
			continue
		}
		if len(n.Plan.Command) > 0 {
			fmt.Fprintf(w, "  command: %s\n", strings.Join(n.Plan.Command, " "))
		}
		for _, field := range sortedFields(n.Plan.Outputs) {
			v := n.Plan.Outputs[field]
			if v.IsKnown() && !v.IsNull() && v.Type() == cty.String {
				fmt.Fprintf(w, "  output:  %s = %s\n", field, v.AsString())
			}
		}
	}
}

// WriteStepTypes lists every registered step type.
func WriteStepTypes(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tINPUTS\tOUTPUTS\tDEFAULTS")
	for _, t := range reg.Types() {
		var defaults []string
		for _, field := range sortedFields(t.Connections) {
			src := t.Connections[field]
			mark := ""
			switch {
			case t.IsIterable(field):
				mark = " (iterate)"
			case t.IsJoin(field):
				mark = " (join)"
			}
			defaults = append(defaults, fmt.Sprintf("%s<-%s.%s%s", field, src.Key, src.Field, mark))
		}
		name := t.QualifiedName()
		if t.AutoInsert {
			name += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, strings.Join(t.Inputs, ","), strings.Join(t.Outputs, ","), strings.Join(defaults, " "))
	}
	return tw.Flush()
}

func sortedFields[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
