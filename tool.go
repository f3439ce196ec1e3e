package polydiff

import (
	"encoding/json"
	"fmt"
)

// ============================================================
// JSON Serialization
// ============================================================

func (c *Constant) toJSON() map[string]any {
	m := map[string]any{"type": "const", "value": c.Value}
	if len(c.Vars) > 0 {
		vars := make([]map[string]any, len(c.Vars))
		for i, v := range c.Vars {
			vars[i] = map[string]any{"name": v.Name, "power": v.Power}
		}
		m["vars"] = vars
	}
	return m
}

func (v *Variable) toJSON() map[string]any {
	coeffs := make([]map[string]any, len(v.Coeffs))
	for i, co := range v.Coeffs {
		coeffs[i] = co.toJSON()
	}
	return map[string]any{
		"type":   "var",
		"name":   v.Active.Name,
		"power":  v.Active.Power,
		"coeffs": coeffs,
	}
}

func (s *Sum) toJSON() map[string]any {
	terms := make([]map[string]any, len(s.Terms))
	for i, t := range s.Terms {
		terms[i] = t.toJSON()
	}
	return map[string]any{"type": "sum", "terms": terms}
}

func (p *Product) toJSON() map[string]any {
	return map[string]any{
		"type":   "product",
		"first":  p.First.toJSON(),
		"second": p.Second.toJSON(),
	}
}

// ToJSON serializes an expression tree to its JSON form.
func ToJSON(e Entity) (string, error) {
	b, err := json.Marshal(e.toJSON())
	return string(b), err
}

// FromJSON rebuilds an expression tree from its JSON object form.
func FromJSON(data map[string]any) (Entity, error) {
	if data == nil {
		return nil, fmt.Errorf("expression must be an object")
	}
	typAny, ok := data["type"]
	if !ok {
		return nil, fmt.Errorf("missing 'type' field")
	}
	typ, ok := typAny.(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("field 'type' must be a non-empty string")
	}

	subObj := func(field string) (map[string]any, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an object", typ, field)
		}
		return m, nil
	}

	subObjArray := func(field string) ([]map[string]any, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		raw, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an array", typ, field)
		}
		out := make([]map[string]any, len(raw))
		for i, it := range raw {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: %q[%d] must be an object", typ, field, i)
			}
			out[i] = m
		}
		return out, nil
	}

	subString := func(field string) (string, error) {
		v, ok := data[field]
		if !ok {
			return "", fmt.Errorf("%s: missing %q", typ, field)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", fmt.Errorf("%s: %q must be a non-empty string", typ, field)
		}
		return s, nil
	}

	subNumber := func(field string) (float64, error) {
		v, ok := data[field]
		if !ok {
			return 0, fmt.Errorf("%s: missing %q", typ, field)
		}
		n, ok := v.(float64)
		if !ok {
			return 0, fmt.Errorf("%s: %q must be a number", typ, field)
		}
		return n, nil
	}

	parseVars := func() ([]Var, error) {
		v, ok := data["vars"]
		if !ok {
			return nil, nil
		}
		raw, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: \"vars\" must be an array", typ)
		}
		out := make([]Var, len(raw))
		for i, it := range raw {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: \"vars\"[%d] must be an object", typ, i)
			}
			name, ok := m["name"].(string)
			if !ok || name == "" {
				return nil, fmt.Errorf("%s: \"vars\"[%d]: \"name\" must be a non-empty string", typ, i)
			}
			power, ok := m["power"].(float64)
			if !ok {
				return nil, fmt.Errorf("%s: \"vars\"[%d]: \"power\" must be a number", typ, i)
			}
			out[i] = Var{Name: name, Power: int(power)}
		}
		return out, nil
	}

	switch typ {
	case "const":
		value, err := subNumber("value")
		if err != nil {
			return nil, err
		}
		vars, err := parseVars()
		if err != nil {
			return nil, err
		}
		return &Constant{Value: value, Vars: vars}, nil

	case "var":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		power, err := subNumber("power")
		if err != nil {
			return nil, err
		}
		var coeffs []Entity
		if _, present := data["coeffs"]; present {
			objs, err := subObjArray("coeffs")
			if err != nil {
				return nil, err
			}
			coeffs = make([]Entity, len(objs))
			for i, o := range objs {
				e, err := FromJSON(o)
				if err != nil {
					return nil, fmt.Errorf("var: coeffs[%d]: %w", i, err)
				}
				coeffs[i] = e
			}
		}
		return &Variable{Active: Var{Name: name, Power: int(power)}, Coeffs: coeffs}, nil

	case "sum":
		objs, err := subObjArray("terms")
		if err != nil {
			return nil, err
		}
		terms := make([]Entity, len(objs))
		for i, o := range objs {
			e, err := FromJSON(o)
			if err != nil {
				return nil, fmt.Errorf("sum: terms[%d]: %w", i, err)
			}
			terms[i] = e
		}
		return &Sum{Terms: terms}, nil

	case "product":
		firstM, err := subObj("first")
		if err != nil {
			return nil, err
		}
		secondM, err := subObj("second")
		if err != nil {
			return nil, err
		}
		first, err := FromJSON(firstM)
		if err != nil {
			return nil, fmt.Errorf("product: first: %w", err)
		}
		second, err := FromJSON(secondM)
		if err != nil {
			return nil, fmt.Errorf("product: second: %w", err)
		}
		return &Product{First: first, Second: second}, nil
	}
	return nil, fmt.Errorf("unknown expression type: %s", typ)
}

// ============================================================
// Tool Interface
// ============================================================

// ToolRequest is one tool invocation: a tool name plus its parameters.
type ToolRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// ToolResponse carries the tree result, its rendering, or an error.
type ToolResponse struct {
	Result any    `json:"result,omitempty"`
	String string `json:"string,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleToolCall dispatches a tool request. Supported tools: diff,
// simplify, render, schema.
func HandleToolCall(req ToolRequest) ToolResponse {
	getExpr := func() (Entity, error) {
		v, ok := req.Params["expr"]
		if !ok {
			return nil, fmt.Errorf("missing param: expr")
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("param expr must be an object")
		}
		return FromJSON(m)
	}

	switch req.Tool {
	case "diff":
		e, err := getExpr()
		if err != nil {
			return ToolResponse{Error: err.Error()}
		}
		d, err := Diff(e)
		if err != nil {
			return ToolResponse{Error: err.Error()}
		}
		return ToolResponse{Result: d.toJSON(), String: d.Render()}

	case "simplify":
		e, err := getExpr()
		if err != nil {
			return ToolResponse{Error: err.Error()}
		}
		s, err := e.Simplify()
		if err != nil {
			return ToolResponse{Error: err.Error()}
		}
		return ToolResponse{Result: s.toJSON(), String: s.Render()}

	case "render":
		e, err := getExpr()
		if err != nil {
			return ToolResponse{Error: err.Error()}
		}
		return ToolResponse{String: e.Render()}

	case "schema":
		return ToolResponse{Result: ToolSpec(), String: "polydiff tool specification"}
	}
	return ToolResponse{Error: fmt.Sprintf("unknown tool: %s", req.Tool)}
}

// ToolSpec returns the JSON tool specification for agent registration.
func ToolSpec() string {
	spec := map[string]any{
		"name":        "polydiff",
		"description": "Symbolic differentiation of single-variable polynomial expression trees",
		"tools": []map[string]any{
			{
				"name":        "diff",
				"description": "Differentiate an expression tree and return the simplified derivative",
				"params":      map[string]string{"expr": "expression object"},
			},
			{
				"name":        "simplify",
				"description": "Collapse an expression tree into its canonical reduced form",
				"params":      map[string]string{"expr": "expression object"},
			},
			{
				"name":        "render",
				"description": "Render an expression tree as an infix string",
				"params":      map[string]string{"expr": "expression object"},
			},
		},
	}
	b, _ := json.MarshalIndent(spec, "", "  ")
	return string(b)
}
