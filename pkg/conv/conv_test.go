package conv

import (
	"math"
	"testing"
	"time"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{name: "float64", in: 1.5, want: 1.5, wantOK: true},
		{name: "int32", in: int32(7), want: 7, wantOK: true},
		{name: "numeric string", in: " 42.5 ", want: 42.5, wantOK: true},
		{name: "bool", in: true, want: 1, wantOK: true},
		{name: "nil", in: nil, wantOK: false},
		{name: "garbage string", in: "abc", wantOK: false},
		{name: "nan", in: math.NaN(), wantOK: false},
		{name: "map", in: map[string]any{"a": 1}, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat64(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ToFloat64(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ToFloat64(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   int
		wantOK bool
	}{
		{name: "int", in: 3, want: 3, wantOK: true},
		{name: "float truncates", in: 3.9, want: 3, wantOK: true},
		{name: "negative float truncates toward zero", in: -3.9, want: -3, wantOK: true},
		{name: "int string", in: "12", want: 12, wantOK: true},
		{name: "float string rejected", in: "3.5", wantOK: false},
		{name: "nil", in: nil, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToInt(tt.in)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("ToInt(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestToFloat32Slice(t *testing.T) {
	got, ok := ToFloat32Slice([]any{1.0, int32(2), "3"})
	if !ok || len(got) != 3 || got[2] != 3 {
		t.Fatalf("ToFloat32Slice() = %v, %v", got, ok)
	}
	if _, ok := ToFloat32Slice([]any{1.0, "x"}); ok {
		t.Fatal("ToFloat32Slice() should reject non-numeric element")
	}
	if _, ok := ToFloat32Slice("nope"); ok {
		t.Fatal("ToFloat32Slice() should reject non-slice")
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		in     any
		wantOK bool
	}{
		{name: "rfc3339 with Z", in: "2024-03-05T10:30:00Z", wantOK: true},
		{name: "lowercase z", in: "2024-03-05T10:30:00z", wantOK: true},
		{name: "offset", in: "2024-03-05T12:30:00+02:00", wantOK: true},
		{name: "naive iso", in: "2024-03-05T10:30:00", wantOK: true},
		{name: "naive iso with micros", in: "2024-03-05T10:30:00.000000", wantOK: true},
		{name: "space separated", in: "2024-03-05 10:30:00", wantOK: true},
		{name: "time.Time", in: want, wantOK: true},
		{name: "epoch millis", in: float64(want.UnixMilli()), wantOK: true},
		{name: "epoch seconds", in: want.Unix(), wantOK: true},
		{name: "extended json", in: map[string]any{"$date": "2024-03-05T10:30:00Z"}, wantOK: true},
		{name: "extended json number long", in: map[string]any{"$date": map[string]any{"$numberLong": "1709634600000"}}, wantOK: true},
		{name: "garbage", in: "yesterday-ish", wantOK: false},
		{name: "empty", in: "", wantOK: false},
		{name: "nil", in: nil, wantOK: false},
		{name: "zero time", in: time.Time{}, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseTime(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && !got.Equal(want) {
				t.Errorf("ParseTime(%v) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestParseTimeOrDefault(t *testing.T) {
	fallback := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeOrDefault("not a time", fallback); !got.Equal(fallback) {
		t.Errorf("ParseTimeOrDefault() = %v, want fallback", got)
	}
	if got := ParseTimeOrDefault("2024-03-05", fallback); got.Equal(fallback) {
		t.Errorf("ParseTimeOrDefault() returned fallback for a valid date")
	}
}
