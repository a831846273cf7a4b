package extractor

import (
	"reflect"
	"strconv"
	"strings"

	"call-insights-go/internal/types"
)

// SchemaFor builds the strict JSON schema sent as text.format for a report
// kind. It is derived from the report struct: json tags name the properties,
// validate tags contribute bounds and enums.
func SchemaFor(kind types.AnalysisKind) map[string]interface{} {
	switch kind {
	case types.KindBucket:
		return objectSchema(reflect.TypeOf(types.BucketReport{}))
	default:
		return objectSchema(reflect.TypeOf(types.GenericReport{}))
	}
}

func objectSchema(t reflect.Type) map[string]interface{} {
	props := make(map[string]interface{})
	required := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		if name == "" {
			continue
		}
		props[name] = fieldSchema(f.Type, f.Tag.Get("validate"))
		required = append(required, name)
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(t reflect.Type, rules string) map[string]interface{} {
	if t.Kind() == reflect.Ptr {
		s := fieldSchema(t.Elem(), rules)
		s["type"] = []interface{}{s["type"], "null"}
		return s
	}

	var s map[string]interface{}
	switch t.Kind() {
	case reflect.String:
		s = map[string]interface{}{"type": "string"}
	case reflect.Bool:
		s = map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int64:
		s = map[string]interface{}{"type": "integer"}
	case reflect.Float64:
		s = map[string]interface{}{"type": "number"}
	case reflect.Slice:
		return map[string]interface{}{"type": "array", "items": fieldSchema(t.Elem(), "")}
	case reflect.Struct:
		return objectSchema(t)
	default:
		s = map[string]interface{}{"type": "string"}
	}

	for _, rule := range strings.Split(rules, ",") {
		key, val, _ := strings.Cut(rule, "=")
		switch key {
		case "min":
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				s["minimum"] = n
			}
		case "max":
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				s["maximum"] = n
			}
		case "oneof":
			s["enum"] = strings.Fields(val)
		}
	}
	return s
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" || !f.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}
