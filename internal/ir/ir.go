// Package ir defines HogTrace's portable, versioned program
// representation (spec §4.2) and converts to/from internal/lang/ast.
//
// Ground: other_examples DataDog dyninst rcjson.go's pattern of a typed,
// JSON-tagged probe-config tree with a discriminator field driving
// (de)serialization, adapted here to a fuller expression tree and a
// single top-level version guard instead of per-probe versioning.
package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PostHog/hogtrace/internal/herrors"
	"github.com/PostHog/hogtrace/internal/lang/ast"

	"golang.org/x/mod/module"
)

// Version is the only IR version this build understands (spec §4.2c).
const Version = "0.1.0"

// Program is the serializable mirror of ast.Program.
type Program struct {
	Version string  `json:"version"`
	Probes  []Probe `json:"probes"`
}

// Probe is the serializable mirror of ast.Probe.
type Probe struct {
	Spec       ProbeSpec `json:"spec"`
	Predicate  *Expr     `json:"predicate"`
	Actions    []Action  `json:"actions"`
}

// ProbeSpec is the serializable mirror of ast.ProbeSpec.
type ProbeSpec struct {
	Provider       string `json:"provider"`
	ModuleFunction string `json:"module_function"`
	ProbePoint     string `json:"probe_point"`
	FullSpec       string `json:"full_spec"`
}

// Action is a tagged union over sample/assignment/capture (spec §4.2).
// Exactly one of Sample, Assignment, Capture is non-nil, selected by
// Type.
type Action struct {
	Type       string          `json:"type"`
	Sample     *SampleSpec     `json:"sample,omitempty"`
	Assignment *AssignmentSpec `json:"assignment,omitempty"`
	Capture    *CaptureSpec    `json:"capture,omitempty"`
}

// SampleSpec mirrors ast.SampleAction.
type SampleSpec struct {
	Kind      string  `json:"kind"` // "percentage" | "ratio"
	Percent   int     `json:"percent,omitempty"`
	Num       int     `json:"num,omitempty"`
	Den       int     `json:"den,omitempty"`
	Threshold float64 `json:"threshold"`
	Raw       string  `json:"raw"`
}

// RequestVar mirrors ast.RequestVar.
type RequestVar struct {
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
	Raw    string `json:"raw"`
}

// AssignmentSpec mirrors ast.AssignmentAction.
type AssignmentSpec struct {
	Var   RequestVar `json:"var"`
	Value Expr       `json:"value"`
}

// NamedCaptureArg mirrors ast.NamedCaptureArg.
type NamedCaptureArg struct {
	Name  string `json:"name"`
	Value Expr   `json:"value"`
}

// CaptureSpec mirrors ast.CaptureAction.
type CaptureSpec struct {
	Function   string            `json:"function"`
	Positional []Expr            `json:"positional,omitempty"`
	Named      []NamedCaptureArg `json:"named,omitempty"`
	Raw        string            `json:"raw"`
}

// Expr is a tagged-union expression node (spec §4.2): exactly one of
// the typed fields is populated, selected by Type.
type Expr struct {
	Type string `json:"type"`
	Raw  string `json:"raw"`

	// literal
	LitKind string  `json:"lit_kind,omitempty"`
	Int     int64   `json:"int,omitempty"`
	Float   float64 `json:"float,omitempty"`
	Str     string  `json:"str,omitempty"`
	Bool    bool    `json:"bool,omitempty"`

	// identifier
	Name string `json:"name,omitempty"`

	// request_var
	Var *RequestVar `json:"var,omitempty"`

	// field_access
	Object *Expr  `json:"object,omitempty"`
	Field  string `json:"field,omitempty"`

	// index_access
	Index *Expr `json:"index,omitempty"`

	// function_call
	Args []Expr `json:"args,omitempty"`

	// binary_op / unary_op
	Op      string `json:"op,omitempty"`
	Left    *Expr  `json:"left,omitempty"`
	Right   *Expr  `json:"right,omitempty"`
	Operand *Expr  `json:"operand,omitempty"`
}

// Serialize encodes a Program deterministically: struct fields in the
// declaration order of the Go types above, HTML-unescaped, no indentation.
// Byte-stable across repeated calls on an unchanged Program (spec §4.2a).
func Serialize(p *Program) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("ir: serialize: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Deserialize decodes a Program, rejecting any version other than
// Version (spec §4.2c).
func Deserialize(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ir: deserialize: %w", err)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("ir: %w", &herrors.VersionError{Got: p.Version, Want: Version})
	}
	for i := range p.Probes {
		if err := validateModuleFunction(p.Probes[i].Spec.ModuleFunction); err != nil {
			return nil, fmt.Errorf("ir: probe %d: %w", i, err)
		}
	}
	return &p, nil
}

// validateModuleFunction checks each dot-separated segment of a
// module_function pattern against the same path-segment shape
// golang.org/x/mod/module enforces for Go import path elements, with an
// exception for the literal wildcard segment "*" the grammar allows
// (spec §4.1 modFunc rule).
func validateModuleFunction(modFunc string) error {
	if modFunc == "" {
		return fmt.Errorf("empty module_function")
	}
	for _, seg := range strings.Split(modFunc, ".") {
		if seg == "*" {
			continue
		}
		if seg == "" {
			return fmt.Errorf("module_function %q has an empty path segment", modFunc)
		}
		if err := module.CheckImportPath(seg); err != nil {
			return fmt.Errorf("module_function %q: invalid segment %q: %w", modFunc, seg, err)
		}
	}
	return nil
}

// FromAST lowers an ast.Program into its serializable IR form.
func FromAST(p *ast.Program) *Program {
	out := &Program{Version: Version}
	for _, probe := range p.Probes {
		out.Probes = append(out.Probes, probeFromAST(probe))
	}
	return out
}

func probeFromAST(p *ast.Probe) Probe {
	ip := Probe{
		Spec: ProbeSpec{
			Provider:       p.Spec.Provider,
			ModuleFunction: p.Spec.ModuleFunction,
			ProbePoint:     p.Spec.ProbePoint,
			FullSpec:       p.Spec.FullSpec,
		},
	}
	if p.Predicate != nil {
		e := exprFromAST(p.Predicate)
		ip.Predicate = &e
	}
	for _, a := range p.Actions {
		ip.Actions = append(ip.Actions, actionFromAST(a))
	}
	return ip
}

func actionFromAST(a ast.Action) Action {
	switch v := a.(type) {
	case *ast.SampleAction:
		kind := "percentage"
		if v.SpecKind == ast.SampleRatio {
			kind = "ratio"
		}
		return Action{Type: "sample", Sample: &SampleSpec{
			Kind: kind, Percent: v.Percent, Num: v.Num, Den: v.Den,
			Threshold: v.Threshold, Raw: v.Raw,
		}}
	case *ast.AssignmentAction:
		val := exprFromAST(v.Value)
		return Action{Type: "assignment", Assignment: &AssignmentSpec{
			Var:   requestVarFromAST(v.Var),
			Value: val,
		}}
	case *ast.CaptureAction:
		spec := &CaptureSpec{Function: v.Function, Raw: v.Raw}
		for _, pos := range v.Positional {
			spec.Positional = append(spec.Positional, exprFromAST(pos))
		}
		for _, n := range v.Named {
			spec.Named = append(spec.Named, NamedCaptureArg{Name: n.Name, Value: exprFromAST(n.Value)})
		}
		return Action{Type: "capture", Capture: spec}
	default:
		panic(fmt.Sprintf("ir: unknown action type %T", a))
	}
}

func requestVarFromAST(v ast.RequestVar) RequestVar {
	return RequestVar{Prefix: v.Prefix, Name: v.Name, Raw: v.Raw}
}

func exprFromAST(e ast.Expr) Expr {
	switch v := e.(type) {
	case *ast.Literal:
		out := Expr{Type: "literal", Raw: v.Raw}
		switch v.LitKind {
		case ast.LiteralInt:
			out.LitKind, out.Int = "int", v.Int
		case ast.LiteralFloat:
			out.LitKind, out.Float = "float", v.Float
		case ast.LiteralString:
			out.LitKind, out.Str = "string", v.Str
		case ast.LiteralBool:
			out.LitKind, out.Bool = "bool", v.Bool
		case ast.LiteralNull:
			out.LitKind = "null"
		}
		return out

	case *ast.Identifier:
		return Expr{Type: "identifier", Name: v.Name, Raw: v.Raw}

	case *ast.RequestVarExpr:
		rv := requestVarFromAST(v.Var)
		return Expr{Type: "request_var", Var: &rv, Raw: v.Raw}

	case *ast.FieldAccess:
		obj := exprFromAST(v.Object)
		return Expr{Type: "field_access", Object: &obj, Field: v.Field, Raw: v.Raw}

	case *ast.IndexAccess:
		obj := exprFromAST(v.Object)
		idx := exprFromAST(v.Index)
		return Expr{Type: "index_access", Object: &obj, Index: &idx, Raw: v.Raw}

	case *ast.FunctionCall:
		out := Expr{Type: "function_call", Name: v.Name, Raw: v.Raw}
		for _, a := range v.Args {
			out.Args = append(out.Args, exprFromAST(a))
		}
		return out

	case *ast.BinaryOp:
		l := exprFromAST(v.Left)
		r := exprFromAST(v.Right)
		return Expr{Type: "binary_op", Op: v.Op, Left: &l, Right: &r, Raw: v.Raw}

	case *ast.UnaryOp:
		o := exprFromAST(v.Operand)
		return Expr{Type: "unary_op", Op: v.Op, Operand: &o, Raw: v.Raw}

	default:
		panic(fmt.Sprintf("ir: unknown expr type %T", e))
	}
}

// ToAST lifts a deserialized Program back into ast.Program for
// evaluation.
func ToAST(p *Program) *ast.Program {
	out := &ast.Program{}
	for i := range p.Probes {
		out.Probes = append(out.Probes, probeToAST(&p.Probes[i]))
	}
	return out
}

func probeToAST(p *Probe) *ast.Probe {
	ap := &ast.Probe{
		Spec: ast.ProbeSpec{
			Provider:       p.Spec.Provider,
			ModuleFunction: p.Spec.ModuleFunction,
			ProbePoint:     p.Spec.ProbePoint,
			FullSpec:       p.Spec.FullSpec,
		},
	}
	if p.Predicate != nil {
		ap.Predicate = exprToAST(p.Predicate)
	}
	for i := range p.Actions {
		ap.Actions = append(ap.Actions, actionToAST(&p.Actions[i]))
	}
	return ap
}

func actionToAST(a *Action) ast.Action {
	switch a.Type {
	case "sample":
		s := a.Sample
		kind := ast.SamplePercentage
		if s.Kind == "ratio" {
			kind = ast.SampleRatio
		}
		return &ast.SampleAction{
			SpecKind: kind, Percent: s.Percent, Num: s.Num, Den: s.Den,
			Threshold: s.Threshold, Raw: s.Raw,
		}
	case "assignment":
		asg := a.Assignment
		return &ast.AssignmentAction{
			Var:   requestVarToAST(asg.Var),
			Value: exprToAST(&asg.Value),
		}
	case "capture":
		c := a.Capture
		out := &ast.CaptureAction{Function: c.Function, Raw: c.Raw}
		for i := range c.Positional {
			out.Positional = append(out.Positional, exprToAST(&c.Positional[i]))
		}
		for _, n := range c.Named {
			out.Named = append(out.Named, ast.NamedCaptureArg{Name: n.Name, Value: exprToAST(&n.Value)})
		}
		return out
	default:
		panic(fmt.Sprintf("ir: unknown action type %q", a.Type))
	}
}

func requestVarToAST(v RequestVar) ast.RequestVar {
	return ast.RequestVar{Prefix: v.Prefix, Name: v.Name, Raw: v.Raw}
}

func exprToAST(e *Expr) ast.Expr {
	switch e.Type {
	case "literal":
		l := &ast.Literal{Raw: e.Raw}
		switch e.LitKind {
		case "int":
			l.LitKind, l.Int = ast.LiteralInt, e.Int
		case "float":
			l.LitKind, l.Float = ast.LiteralFloat, e.Float
		case "string":
			l.LitKind, l.Str = ast.LiteralString, e.Str
		case "bool":
			l.LitKind, l.Bool = ast.LiteralBool, e.Bool
		case "null":
			l.LitKind = ast.LiteralNull
		}
		return l

	case "identifier":
		return &ast.Identifier{Name: e.Name, Raw: e.Raw}

	case "request_var":
		return &ast.RequestVarExpr{Var: requestVarToAST(*e.Var), Raw: e.Raw}

	case "field_access":
		return &ast.FieldAccess{Object: exprToAST(e.Object), Field: e.Field, Raw: e.Raw}

	case "index_access":
		return &ast.IndexAccess{Object: exprToAST(e.Object), Index: exprToAST(e.Index), Raw: e.Raw}

	case "function_call":
		out := &ast.FunctionCall{Name: e.Name, Raw: e.Raw}
		for i := range e.Args {
			out.Args = append(out.Args, exprToAST(&e.Args[i]))
		}
		return out

	case "binary_op":
		return &ast.BinaryOp{Op: e.Op, Left: exprToAST(e.Left), Right: exprToAST(e.Right), Raw: e.Raw}

	case "unary_op":
		return &ast.UnaryOp{Op: e.Op, Operand: exprToAST(e.Operand), Raw: e.Raw}

	default:
		panic(fmt.Sprintf("ir: unknown expr type %q", e.Type))
	}
}
