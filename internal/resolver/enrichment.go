package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/errgroup"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/record"
)

type dynamicField struct {
	DynamicField
	cond *vm.Program
}

// Enrichment resolves a DocType from a Definition: static fields, then the
// dynamic fields whose condition holds, with choices fetched from the
// definition's references on every call.
type Enrichment struct {
	def     *Definition
	docs    DocumentLister
	refKeys []string
	dynamic []dynamicField
}

// NewEnrichment compiles the conditions of def and checks that every
// choice list it names is declared.
func NewEnrichment(def *Definition, docs DocumentLister) (*Enrichment, error) {
	e := &Enrichment{def: def, docs: docs}
	for k := range def.References {
		e.refKeys = append(e.refKeys, k)
	}
	sort.Strings(e.refKeys)

	for _, df := range def.DynamicFields {
		if df.ChoicesFrom != "" {
			if _, ok := def.References[df.ChoicesFrom]; !ok {
				return nil, fmt.Errorf("%s.%s: unknown reference %q", def.DocType, df.Key, df.ChoicesFrom)
			}
		}
		for child, ref := range df.ChildChoices {
			if _, ok := def.References[ref]; !ok {
				return nil, fmt.Errorf("%s.%s.%s: unknown reference %q", def.DocType, df.Key, child, ref)
			}
		}
		d := dynamicField{DynamicField: df}
		if df.When != "" {
			prog, err := compileCondition(df.When)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.DocType, df.Key, err)
			}
			d.cond = prog
		}
		e.dynamic = append(e.dynamic, d)
	}
	return e, nil
}

// DocType returns the DocType this resolver serves.
func (e *Enrichment) DocType() string { return e.def.DocType }

func (e *Enrichment) Resolve(ctx context.Context, _ string, input map[string]any) ([]metadata.FieldDescriptor, error) {
	if input == nil {
		input = map[string]any{}
	}
	choices, err := e.fetchChoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve fields of %s: %w", e.def.DocType, err)
	}

	out := make([]metadata.FieldDescriptor, 0, len(e.def.StaticFields)+len(e.dynamic))
	for _, f := range e.def.StaticFields {
		out = append(out, f.Clone())
	}
	env := map[string]any{"input": input}
	for _, d := range e.dynamic {
		if d.cond != nil {
			ok, err := runCondition(d.cond, env)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.def.DocType, d.Key, err)
			}
			if !ok {
				continue
			}
		}
		f := d.FieldDescriptor.Clone()
		if d.ChoicesFrom != "" {
			f.Choices = cloneChoices(choices[d.ChoicesFrom])
		}
		for i := range f.Children {
			if ref, ok := d.ChildChoices[f.Children[i].Key]; ok {
				f.Children[i].Choices = cloneChoices(choices[ref])
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// fetchChoices queries every reference concurrently and returns the choice
// lists by reference key. The first failure cancels the rest.
func (e *Enrichment) fetchChoices(ctx context.Context) (map[string]metadata.Choices, error) {
	results := make([]metadata.Choices, len(e.refKeys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range e.refKeys {
		i, key := i, key
		ref := e.def.References[key]
		g.Go(func() error {
			c, err := e.fetchReference(gctx, ref)
			if err != nil {
				return fmt.Errorf("reference %s: %w", key, err)
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]metadata.Choices, len(e.refKeys))
	for i, key := range e.refKeys {
		out[key] = results[i]
	}
	return out, nil
}

func (e *Enrichment) fetchReference(ctx context.Context, ref Reference) (metadata.Choices, error) {
	limit := ref.Limit
	if limit <= 0 {
		limit = frappe.DefaultPageLength
	}
	docs, err := e.docs.ListDocuments(ctx, ref.DocType, frappe.ListParams{
		Fields: []string{record.IdentityField, ref.Label},
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	pairs := make([]record.KeyLabel, 0, len(docs))
	for _, doc := range docs {
		key := doc.Name()
		label := key
		if ref.Label != record.IdentityField {
			if s := toString(doc[ref.Label]); s != "" {
				label = s
			}
		}
		pairs = append(pairs, record.KeyLabel{Key: key, Label: label})
	}
	return metadata.FoldChoices(pairs), nil
}

func cloneChoices(c metadata.Choices) metadata.Choices {
	if c == nil {
		return metadata.Choices{}
	}
	return c.Clone()
}

var conditionOptions = []expr.Option{
	expr.Env(map[string]any{"input": map[string]any{}}),
	expr.AsBool(),
	expr.Function("num", func(params ...any) (any, error) {
		return toNumber(params[0]), nil
	}, new(func(any) float64)),
	expr.Function("str", func(params ...any) (any, error) {
		return toString(params[0]), nil
	}, new(func(any) string)),
}

func compileCondition(src string) (*vm.Program, error) {
	prog, err := expr.Compile(src, conditionOptions...)
	if err != nil {
		return nil, fmt.Errorf("compile condition: %w", err)
	}
	return prog, nil
}

func runCondition(prog *vm.Program, env map[string]any) (bool, error) {
	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("condition did not return bool")
	}
	return ok, nil
}

// toNumber reads a form value as a number. Unparseable values are 0.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
