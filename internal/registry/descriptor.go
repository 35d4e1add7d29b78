package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dotcommander/toolchat/internal/errs"
)

// Parameter is one named argument of a tool.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
}

// ToolDescriptor describes a tool hosted by a provider. It is immutable once
// registered.
type ToolDescriptor struct {
	Name        string
	Description string
	ProviderID  string
	Schema      *jsonschema.Schema
}

// NewDescriptor builds a descriptor from a provider's catalog entry.
//
// Required parameters keep the order the provider declared them in; optional
// ones follow sorted by name.
func NewDescriptor(providerID string, tool mcp.Tool) (ToolDescriptor, error) {
	if tool.Name == "" {
		return ToolDescriptor{}, fmt.Errorf("provider %q: tool without a name", providerID)
	}

	props := orderedmap.New[string, *jsonschema.Schema](len(tool.InputSchema.Properties))
	schema := &jsonschema.Schema{Type: "object", Properties: props}

	names := make([]string, 0, len(tool.InputSchema.Properties))
	for _, name := range tool.InputSchema.Required {
		if _, ok := tool.InputSchema.Properties[name]; ok && !slices.Contains(names, name) {
			names = append(names, name)
			schema.Required = append(schema.Required, name)
		}
	}
	optional := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		if !slices.Contains(names, name) {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	names = append(names, optional...)

	for _, name := range names {
		prop, err := propertySchema(tool.InputSchema.Properties[name])
		if err != nil {
			return ToolDescriptor{}, fmt.Errorf("tool %q parameter %q: %w", tool.Name, name, err)
		}
		props.Set(name, prop)
	}

	return ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		ProviderID:  providerID,
		Schema:      schema,
	}, nil
}

func propertySchema(raw any) (*jsonschema.Schema, error) {
	bts, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var prop jsonschema.Schema
	if err := json.Unmarshal(bts, &prop); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &prop, nil
}

// Parameters returns the tool's parameters in schema order.
func (d ToolDescriptor) Parameters() []Parameter {
	if d.Schema == nil || d.Schema.Properties == nil {
		return nil
	}
	params := make([]Parameter, 0, d.Schema.Properties.Len())
	for pair := d.Schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		params = append(params, Parameter{
			Name:        pair.Key,
			Type:        pair.Value.Type,
			Description: pair.Value.Description,
			Required:    slices.Contains(d.Schema.Required, pair.Key),
			Default:     pair.Value.Default,
		})
	}
	return params
}

// InputSchema renders the parameter schema as a JSON-schema object.
func (d ToolDescriptor) InputSchema() map[string]any {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	if d.Schema == nil {
		return out
	}
	bts, err := json.Marshal(d.Schema)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(bts, &out); err != nil {
		return out
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

// Signature renders the tool as name(param: type, ...).
func (d ToolDescriptor) Signature() string {
	params := d.Parameters()
	parts := make([]string, 0, len(params))
	for _, p := range params {
		part := p.Name + ": " + ifEmpty(p.Type, "any")
		if !p.Required {
			part += "?"
		}
		parts = append(parts, part)
	}
	return d.Name + "(" + strings.Join(parts, ", ") + ")"
}

func ifEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Validate checks args against the schema and returns a copy with defaults
// filled in for absent optional parameters.
func (d ToolDescriptor) Validate(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	var problems []string

	known := map[string]*jsonschema.Schema{}
	if d.Schema != nil && d.Schema.Properties != nil {
		for pair := d.Schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			known[pair.Key] = pair.Value
		}
	}

	unknown := make([]string, 0)
	for name := range args {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		problems = append(problems, fmt.Sprintf("unknown parameter %q", name))
	}

	for _, p := range d.Parameters() {
		v, ok := args[p.Name]
		if !ok || v == nil {
			switch {
			case p.Required:
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
			case p.Default != nil:
				out[p.Name] = p.Default
			}
			continue
		}
		if err := checkType(known[p.Name], v); err != nil {
			problems = append(problems, fmt.Sprintf("parameter %q: %s", p.Name, err))
			continue
		}
		out[p.Name] = v
	}

	if len(problems) > 0 {
		return nil, errs.New(
			errs.KindToolValidation,
			fmt.Errorf("%s: %s", d.Name, strings.Join(problems, "; ")),
			fmt.Sprintf("Invalid arguments for tool %s.", d.Name),
		)
	}
	return out, nil
}

func checkType(schema *jsonschema.Schema, v any) error {
	if schema == nil {
		return nil
	}
	switch schema.Type {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case "number":
		if _, ok := asFloat(v); !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
	case "integer":
		f, ok := asFloat(v)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("expected integer, got %v", v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case "array":
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
	}
	if len(schema.Enum) > 0 && !slices.ContainsFunc(schema.Enum, func(e any) bool { return sameValue(e, v) }) {
		return fmt.Errorf("value %v is not one of %v", v, schema.Enum)
	}
	return nil
}

// sameValue compares JSON values. Numbers compare by value regardless of Go
// type; arrays and objects compare deeply.
func sameValue(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
