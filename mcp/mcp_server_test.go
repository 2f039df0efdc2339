package mcp

import "testing"

func TestArgumentCoercion(t *testing.T) {
	t.Run("toString", func(t *testing.T) {
		if got := toString("abc"); got != "abc" {
			t.Errorf("toString(string) = %q", got)
		}
		if got := toString(42); got != "" {
			t.Errorf("toString(int) = %q, want empty", got)
		}
		if got := toString(nil); got != "" {
			t.Errorf("toString(nil) = %q, want empty", got)
		}
	})

	t.Run("toInt64", func(t *testing.T) {
		tests := []struct {
			in   interface{}
			want int64
		}{
			{int64(7), 7},
			{9, 9},
			{float64(12.9), 12}, // JSON numbers arrive as float64
			{"25", 25},
			{"nope", 0},
			{nil, 0},
		}
		for _, tt := range tests {
			if got := toInt64(tt.in); got != tt.want {
				t.Errorf("toInt64(%v) = %d, want %d", tt.in, got, tt.want)
			}
		}
	})

	t.Run("toFloat64", func(t *testing.T) {
		if got := toFloat64(1.5); got != 1.5 {
			t.Errorf("toFloat64(1.5) = %v", got)
		}
		if got := toFloat64("2.25"); got != 2.25 {
			t.Errorf("toFloat64(string) = %v", got)
		}
		if got := toFloat64(nil); got != 0 {
			t.Errorf("toFloat64(nil) = %v", got)
		}
	})

	t.Run("toBool", func(t *testing.T) {
		if !toBool(true) {
			t.Error("toBool(true) = false")
		}
		if toBool("true") {
			t.Error("toBool(string) should not coerce")
		}
	})
}
