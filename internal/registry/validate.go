package registry

import (
	"errors"
	"fmt"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/starford/mnemo/internal/apperr"
)

// Validate checks args against the tool's input schema: required keys,
// JSON types, enums and numeric bounds. Unknown keys are allowed.
func Validate(tool mcp.Tool, args map[string]any) error {
	var keys []*validation.KeyRules
	for name, raw := range tool.InputSchema.Properties {
		prop, _ := raw.(map[string]any)
		rules := propertyRules(prop)
		key := validation.Key(name, rules...)
		if !slices.Contains(tool.InputSchema.Required, name) {
			key = key.Optional()
		}
		keys = append(keys, key)
	}
	err := validation.Validate(args, validation.Map(keys...).AllowExtraKeys())
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", tool.Name, apperr.ErrValidation, err)
}

func propertyRules(prop map[string]any) []validation.Rule {
	var rules []validation.Rule
	if typ, ok := prop["type"].(string); ok {
		rules = append(rules, validation.By(jsonType(typ)))
	}
	if enum := enumValues(prop["enum"]); len(enum) > 0 {
		rules = append(rules, validation.In(enum...))
	}
	minVal, hasMin := prop["minimum"]
	maxVal, hasMax := prop["maximum"]
	if hasMin || hasMax {
		rules = append(rules, validation.By(bounds(minVal, hasMin, maxVal, hasMax)))
	}
	return rules
}

func enumValues(v any) []any {
	switch e := v.(type) {
	case []string:
		out := make([]any, len(e))
		for i, s := range e {
			out[i] = s
		}
		return out
	case []any:
		return e
	}
	return nil
}

func jsonType(typ string) validation.RuleFunc {
	return func(value any) error {
		if value == nil {
			return nil
		}
		var ok bool
		switch typ {
		case "string":
			_, ok = value.(string)
		case "number", "integer":
			_, err := cast.ToFloat64E(value)
			_, isBool := value.(bool)
			ok = err == nil && !isBool
		case "boolean":
			_, err := cast.ToBoolE(value)
			ok = err == nil
		case "array":
			_, ok = value.([]any)
		case "object":
			_, ok = value.(map[string]any)
		default:
			ok = true
		}
		if !ok {
			return errors.New("must be of type " + typ)
		}
		return nil
	}
}

func bounds(minVal any, hasMin bool, maxVal any, hasMax bool) validation.RuleFunc {
	return func(value any) error {
		if value == nil {
			return nil
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil
		}
		if hasMin && f < cast.ToFloat64(minVal) {
			return fmt.Errorf("must be no less than %v", minVal)
		}
		if hasMax && f > cast.ToFloat64(maxVal) {
			return fmt.Errorf("must be no greater than %v", maxVal)
		}
		return nil
	}
}
