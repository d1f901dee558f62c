package result

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"testing"
)

func TestClassifyFamily(t *testing.T) {
	tests := []struct {
		key  string
		want Family
	}{
		{"unified_x", FamilyString},
		{"info_entity_kitchen", FamilyString},
		{"state_text_door", FamilyString},
		{"name_text_1", FamilyString},
		{"dynamic_icon_a", FamilyString},
		{"dynamic_color_a", FamilyString},
		{"entity_picture_cam", FamilyString},
		{"visibility_1", FamilyBoolean},
		{"", FamilyBoolean},
		{"xunified_", FamilyBoolean},
		{"UNIFIED_x", FamilyBoolean},
	}

	for _, tt := range tests {
		if got := ClassifyFamily(tt.key); got != tt.want {
			t.Errorf("ClassifyFamily(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestFamilyString(t *testing.T) {
	if FamilyBoolean.String() != "BOOLEAN" {
		t.Errorf("FamilyBoolean.String() = %q", FamilyBoolean.String())
	}
	if FamilyString.String() != "STRING" {
		t.Errorf("FamilyString.String() = %q", FamilyString.String())
	}
	if Family(99).String() != "UNKNOWN" {
		t.Errorf("Family(99).String() = %q", Family(99).String())
	}
}

func TestParseBooleanTokens(t *testing.T) {
	tests := []struct {
		raw  any
		want bool
	}{
		{"on", true},
		{"ON", true},
		{"True", true},
		{"1", true},
		{"yes", true},
		{"active", true},
		{"home", true},
		{"open", true},
		{"unlocked", true},
		{"  on  ", true},
		{"  ", true},
		{" off", true},
		{"", false},
		{"false", false},
		{"OFF", false},
		{"no", false},
		{"inactive", false},
		{"not_home", false},
		{"away", false},
		{"0", false},
		{"closed", false},
		{"locked", false},
		{"unavailable", false},
		{"Unknown", false},
		{"something else", true},
		{"23.5", true},
	}

	for _, tt := range tests {
		if got := ParseBoolean(tt.raw, FamilyBoolean, nil); got != tt.want {
			t.Errorf("ParseBoolean(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseBooleanPrimitives(t *testing.T) {
	type namedString string

	tests := []struct {
		name string
		raw  any
		want bool
	}{
		{"nil", nil, false},
		{"true", true, true},
		{"false", false, false},
		{"int zero", 0, false},
		{"int nonzero", 7, true},
		{"negative", int64(-1), true},
		{"uint", uint8(3), true},
		{"float zero", 0.0, false},
		{"float nonzero", 0.25, true},
		{"NaN", math.NaN(), false},
		{"json number", json.Number("2"), true},
		{"json number zero", json.Number("0"), false},
		{"named string", namedString("off"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseBoolean(tt.raw, FamilyBoolean, nil); got != tt.want {
				t.Errorf("ParseBoolean(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseBooleanNonPrimitiveWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	values := []any{
		map[string]any{"state": "on"},
		[]any{1, 2},
		func() {},
		&struct{}{},
	}

	for _, v := range values {
		buf.Reset()
		if ParseBoolean(v, FamilyBoolean, logger) {
			t.Errorf("ParseBoolean(%T) = true, want false", v)
		}
		if !strings.Contains(buf.String(), "non-primitive template result") {
			t.Errorf("ParseBoolean(%T) did not log a warning, got %q", v, buf.String())
		}
		if !strings.Contains(buf.String(), `"level":"WARN"`) {
			t.Errorf("warning logged at wrong level: %q", buf.String())
		}
	}
}

func TestParseBooleanFalsyTokensDoNotWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ParseBoolean("", FamilyBoolean, logger)
	ParseBoolean(nil, FamilyBoolean, logger)
	ParseBoolean("off", FamilyBoolean, logger)

	if buf.Len() != 0 {
		t.Errorf("falsy tokens logged output: %q", buf.String())
	}
}

func TestParseBooleanStringFamilyAlwaysTrue(t *testing.T) {
	values := []any{nil, "", "off", false, 0, map[string]any{}}
	for _, v := range values {
		if !ParseBoolean(v, FamilyString, nil) {
			t.Errorf("ParseBoolean(%v, FamilyString) = false, want true", v)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		raw  any
		want string
	}{
		{nil, ""},
		{"hello", "hello"},
		{true, "true"},
		{false, "false"},
		{1.0, "1"},
		{1.5, "1.5"},
		{42, "42"},
		{int64(-3), "-3"},
		{json.Number("7.25"), "7.25"},
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]any{"x", 2}, `["x",2]`},
	}

	for _, tt := range tests {
		if got := Stringify(tt.raw); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
