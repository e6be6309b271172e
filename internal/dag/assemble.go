package dag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/workflow"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// link is one resolved connection. A nil producer means the value comes
// from the setup record.
type link struct {
	field     string
	fromField string
	producer  *workflow.Instance
	setup     cty.Value
}

// scope is an iteration domain shared by a step and its non-join consumers.
type scope struct {
	origin string
	width  int
}

type assembler struct {
	table  *workflow.Table
	links  map[*workflow.Instance][]link
	scopes map[*workflow.Instance]*scope
	seqs   map[*workflow.Instance]map[string][]cty.Value
}

// Assemble resolves every connection of the table's step instances and
// builds the execution graph. Each node is prepared against its planned
// inputs, so option errors abort assembly before anything runs.
func Assemble(ctx context.Context, table *workflow.Table) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Assemble: Starting graph construction.")
	a := &assembler{
		table:  table,
		links:  map[*workflow.Instance][]link{},
		scopes: map[*workflow.Instance]*scope{},
		seqs:   map[*workflow.Instance]map[string][]cty.Value{},
	}

	if err := a.resolveAll(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Assemble: Connections resolved.", "steps", len(a.links))

	order, err := a.sortInstances()
	if err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Assemble: Cycle detection passed.")

	if err := a.computeScopes(ctx, order); err != nil {
		return nil, err
	}
	g := a.expand(order)
	logger.Debug("Assemble: Node expansion complete.", "node_count", g.Len())

	if err := prepare(ctx, g); err != nil {
		return nil, err
	}
	logger.Debug("Assemble: Graph construction successful.")
	return g, nil
}

// resolveAll resolves connections in declaration order. Producers
// inserted along the way are resolved after the declared steps.
func (a *assembler) resolveAll(ctx context.Context) error {
	queue := a.table.Instances()
	for i := 0; i < len(queue); i++ {
		inst := queue[i]
		a.links[inst] = nil
		for _, field := range inst.ConnectedFields() {
			l, inserted, err := a.resolve(ctx, inst, field, inst.Connections[field])
			if err != nil {
				return err
			}
			if inserted != nil {
				queue = append(queue, inserted)
			}
			a.links[inst] = append(a.links[inst], l)
		}
	}
	return nil
}

func (a *assembler) resolve(ctx context.Context, inst *workflow.Instance, field string, src registry.Source) (link, *workflow.Instance, error) {
	l := link{field: field, fromField: src.Field}
	unresolved := func(reason string) error {
		return &UnresolvedConnectionSourceError{Step: inst.Name, Field: field, Source: src.Key, Reason: reason}
	}
	produce := func(p *workflow.Instance) error {
		if !p.Type.HasOutput(src.Field) {
			return unresolved(fmt.Sprintf("step %s (%s) has no output %q", p.Name, p.Type.Name, src.Field))
		}
		l.producer = p
		return nil
	}

	if p, ok := a.table.Lookup(src.Key); ok {
		return l, nil, produce(p)
	}

	switch cands := a.table.OfType(src.Key); {
	case len(cands) == 1:
		return l, nil, produce(cands[0])
	case len(cands) > 1:
		names := make([]string, len(cands))
		for i, c := range cands {
			names[i] = c.Name
		}
		sort.Strings(names)
		return l, nil, &AmbiguousConnectionError{Step: inst.Name, Field: field, Type: src.Key, Candidates: names}
	}

	if config.IsSetupKey(src.Key) {
		model := a.table.Model()
		if model == nil {
			return l, nil, unresolved("no setup record")
		}
		v, ok := model.SetupValue(src.Field)
		if !ok {
			return l, nil, unresolved(fmt.Sprintf("setup has no field %q", src.Field))
		}
		l.setup = v
		return l, nil, nil
	}

	if !inst.Explicit[field] {
		if st, err := a.table.Registry().Lookup(src.Key); err == nil && st.AutoInsert {
			p, err := a.table.Instantiate(ctx, st.QualifiedName(), st.Name, nil)
			if err != nil {
				return l, nil, fmt.Errorf("step %q: input %q: inserting producer %s: %w", inst.Name, field, st.Name, err)
			}
			p.Auto = true
			ctxlog.FromContext(ctx).Warn("Producer not declared, inserting one with default options.",
				"step", inst.Name, "field", field, "type", st.Name)
			return l, p, produce(p)
		}
	}
	return l, nil, unresolved("")
}

// sortInstances orders instances so producers precede consumers, keeping
// declaration order otherwise.
func (a *assembler) sortInstances() ([]*workflow.Instance, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := map[*workflow.Instance]int{}
	var (
		stack []string
		order []*workflow.Instance
		visit func(*workflow.Instance) error
	)
	visit = func(inst *workflow.Instance) error {
		switch state[inst] {
		case done:
			return nil
		case visiting:
			start := slices.Index(stack, inst.Name)
			return cycleError(append(slices.Clone(stack[start:]), inst.Name))
		}
		state[inst] = visiting
		stack = append(stack, inst.Name)
		for _, l := range a.links[inst] {
			if l.producer == nil {
				continue
			}
			if err := visit(l.producer); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[inst] = done
		order = append(order, inst)
		return nil
	}
	for _, inst := range a.table.Instances() {
		if err := visit(inst); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (a *assembler) computeScopes(ctx context.Context, order []*workflow.Instance) error {
	logger := ctxlog.FromContext(ctx)
	for _, inst := range order {
		own, err := a.ownScope(inst)
		if err != nil {
			return err
		}
		var inherited *scope
		for _, l := range a.links[inst] {
			if l.producer == nil || inst.Type.IsJoin(l.field) {
				continue
			}
			ps := a.scopes[l.producer]
			if ps == nil {
				continue
			}
			if inherited != nil && inherited != ps {
				return iterationf(inst.Name, "inputs iterate over both %s and %s", inherited.origin, ps.origin)
			}
			inherited = ps
		}
		switch {
		case own != nil && inherited != nil:
			return iterationf(inst.Name, "iterates over its own input and over %s; nested iteration is not supported", inherited.origin)
		case own != nil:
			a.scopes[inst] = own
			if own.width == 0 {
				logger.Warn("Iterable input is empty, step will not run.", "step", inst.Name)
			}
		default:
			a.scopes[inst] = inherited
		}
	}
	return nil
}

// ownScope finds the sequences the instance's iterable inputs are bound
// to. Several iterables are walked in lockstep and must agree in length.
func (a *assembler) ownScope(inst *workflow.Instance) (*scope, error) {
	var s *scope
	for _, field := range inst.Type.Iterables {
		bound, ok := inst.Options[field]
		if !ok {
			l, found := a.linkFor(inst, field)
			if !found {
				continue
			}
			if l.producer != nil {
				return nil, iterationf(inst.Name, "iterable input %q is connected to step %s; it must be bound to a setup field or a literal list", field, l.producer.Name)
			}
			bound = l.setup
		}
		seq, err := sequence(bound)
		if err != nil {
			return nil, iterationf(inst.Name, "iterable input %q: %s", field, err)
		}
		if s != nil && s.width != len(seq) {
			return nil, iterationf(inst.Name, "iterable inputs have different lengths (%d and %d)", s.width, len(seq))
		}
		if s == nil {
			s = &scope{origin: inst.Name, width: len(seq)}
			a.seqs[inst] = map[string][]cty.Value{}
		}
		a.seqs[inst][field] = seq
	}
	return s, nil
}

func (a *assembler) linkFor(inst *workflow.Instance, field string) (link, bool) {
	for _, l := range a.links[inst] {
		if l.field == field {
			return l, true
		}
	}
	return link{}, false
}

func sequence(v cty.Value) ([]cty.Value, error) {
	if v == cty.NilVal || v.IsNull() || !v.IsWhollyKnown() {
		return nil, errors.New("value must be a known list")
	}
	ty := v.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("expected a list, got %s", ty.FriendlyName())
	}
	out := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, e := it.Element()
		out = append(out, e)
	}
	return out, nil
}

func (a *assembler) expand(order []*workflow.Instance) *Graph {
	g := &Graph{table: a.table, byID: map[string]*Node{}}
	expanded := map[*workflow.Instance][]*Node{}
	for _, inst := range order {
		var nodes []*Node
		if s := a.scopes[inst]; s == nil {
			nodes = []*Node{a.newNode(inst, inst.Name, -1)}
		} else {
			for i := 0; i < s.width; i++ {
				nodes = append(nodes, a.newNode(inst, fmt.Sprintf("%s[%d]", inst.Name, i), i))
			}
		}
		for _, n := range nodes {
			for _, l := range a.links[inst] {
				if l.producer == nil {
					continue
				}
				producers := expanded[l.producer]
				e := &Edge{Field: l.field, FromField: l.fromField}
				switch {
				case inst.Type.IsJoin(l.field):
					e.Join = true
					e.Sources = slices.Clone(producers)
				case a.scopes[l.producer] != nil:
					e.Sources = []*Node{producers[n.Index]}
				default:
					e.Sources = producers[:1]
				}
				n.Edges = append(n.Edges, e)
				for _, src := range e.Sources {
					addDependency(src, n)
				}
			}
			g.nodes = append(g.nodes, n)
			g.byID[n.ID] = n
		}
		expanded[inst] = nodes
	}
	return g
}

func (a *assembler) newNode(inst *workflow.Instance, id string, index int) *Node {
	static := make(registry.Inputs, len(inst.Options))
	for k, v := range inst.Options {
		static[k] = v
	}
	seqs := a.seqs[inst]
	for _, l := range a.links[inst] {
		if _, iterated := seqs[l.field]; l.producer == nil && !iterated {
			static[l.field] = l.setup
		}
	}
	if index >= 0 {
		for field, seq := range seqs {
			static[field] = seq[index]
		}
	}
	return &Node{ID: id, Instance: inst, Index: index, Static: static}
}

func addDependency(producer, consumer *Node) {
	if slices.Contains(consumer.deps, producer) {
		return
	}
	consumer.deps = append(consumer.deps, producer)
	producer.dependents = append(producer.dependents, consumer)
}

// prepare runs every step's Prepare, one dependency level at a time, so
// each node sees its producers' planned outputs.
func prepare(ctx context.Context, g *Graph) error {
	logger := ctxlog.FromContext(ctx)
	level := make(map[*Node]int, len(g.nodes))
	var levels [][]*Node
	for _, n := range g.nodes {
		l := 0
		for _, d := range n.deps {
			l = max(l, level[d]+1)
		}
		level[n] = l
		if l == len(levels) {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], n)
	}

	for _, batch := range levels {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, n := range batch {
			eg.Go(func() error {
				stepCtx := ctxlog.With(egCtx, "step", n.Step(), "node", n.ID)
				plan, err := n.Instance.Step.Prepare(stepCtx, n.planned())
				if err != nil {
					return fmt.Errorf("preparing %s: %w", n.ID, err)
				}
				if plan == nil {
					plan = &registry.Plan{}
				}
				n.Plan = plan
				logger.Debug("Node prepared.", "node", n.ID, "command", plan.Command)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}
