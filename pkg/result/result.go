package result

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Family classifies how a key's pushed values are interpreted.
type Family uint8

const (
	// FamilyBoolean parses pushed values into a condition.
	FamilyBoolean Family = iota

	// FamilyString compares pushed values as raw text.
	FamilyString
)

// String returns a human-readable family name.
func (f Family) String() string {
	switch f {
	case FamilyBoolean:
		return "BOOLEAN"
	case FamilyString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// StringPrefixes lists the key namespaces that belong to FamilyString.
var StringPrefixes = []string{
	"unified_",
	"info_entity_",
	"state_text_",
	"name_text_",
	"dynamic_icon_",
	"dynamic_color_",
	"entity_picture_",
}

var truthy = map[string]struct{}{
	"true": {}, "on": {}, "yes": {}, "active": {}, "home": {},
	"1": {}, "open": {}, "unlocked": {},
}

var falsy = map[string]struct{}{
	"false": {}, "off": {}, "no": {}, "inactive": {}, "not_home": {},
	"away": {}, "0": {}, "closed": {}, "locked": {}, "unavailable": {},
	"unknown": {}, "": {},
}

// ClassifyFamily returns the family a subscription key belongs to.
func ClassifyFamily(key string) Family {
	for _, prefix := range StringPrefixes {
		if strings.HasPrefix(key, prefix) {
			return FamilyString
		}
	}
	return FamilyBoolean
}

// ParseBoolean interprets a pushed value according to its family.
// Non-primitive values are false and produce a warning on logger (nil disables it).
func ParseBoolean(raw any, family Family, logger *slog.Logger) bool {
	if family == FamilyString {
		return true
	}

	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return parseToken(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return parseToken(v.String())
		}
		return f != 0 && !math.IsNaN(f)
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.String:
		return parseToken(rv.String())
	case reflect.Bool:
		return rv.Bool()
	}

	if logger != nil {
		logger.Warn("non-primitive template result",
			"type", fmt.Sprintf("%T", raw),
			"kind", rv.Kind().String())
	}
	return false
}

// parseToken matches s case-insensitively against the truthy and falsy
// token sets. Unrecognized non-empty strings, whitespace included, are true.
func parseToken(s string) bool {
	token := strings.ToLower(s)
	if _, ok := truthy[token]; ok {
		return true
	}
	if _, ok := falsy[token]; ok {
		return false
	}
	return true
}

// Stringify returns the string form of a pushed value used for raw
// comparison and the rendered-text store.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case fmt.Stringer:
		return v.String()
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(data)
}
