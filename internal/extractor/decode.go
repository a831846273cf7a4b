package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"call-insights-go/internal/types"
)

// ErrSchemaViolation marks model output that does not match the report schema.
var ErrSchemaViolation = errors.New("analysis schema violation")

var validate = validator.New()

// Decode parses model output into the report for kind. Fences around the JSON
// are tolerated; unknown keys, missing keys and out-of-range values are not.
func Decode(kind types.AnalysisKind, output string) (*types.GenericReport, *types.BucketReport, error) {
	raw := extractJSON(output)
	if raw == "" {
		return nil, nil, fmt.Errorf("%w: no JSON object in model output", ErrSchemaViolation)
	}

	switch kind {
	case types.KindGeneric:
		var g types.GenericReport
		if err := decodeStrict(raw, &g); err != nil {
			return nil, nil, err
		}
		return &g, nil, nil
	case types.KindBucket:
		var b types.BucketReport
		if err := decodeStrict(raw, &b); err != nil {
			return nil, nil, err
		}
		return nil, &b, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrSchemaViolation, kind)
	}
}

func decodeStrict(raw string, target interface{}) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	var generic interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := requireKeys("", generic, reflect.TypeOf(target).Elem()); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// requireKeys checks that every json field of t is present in v, recursing
// into nested objects. Nullable fields must still be present.
func requireKeys(path string, v interface{}, t reflect.Type) error {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s: expected object", strings.TrimPrefix(path, "."))
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		if name == "" {
			continue
		}
		val, present := obj[name]
		if !present {
			return fmt.Errorf("missing key %s", strings.TrimPrefix(path+"."+name, "."))
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			if val == nil {
				continue
			}
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			if err := requireKeys(path+"."+name, val, ft); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractJSON finds the first balanced JSON object in a string.
// It strips common markdown fences first.
func extractJSON(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
