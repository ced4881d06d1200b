package dateparam

import (
	"testing"
	"time"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Format
		ok    bool
	}{
		{"iso", "2024-03-15", ISO, true},
		{"compact", "20240315", Compact, true},
		{"slash", "2024/03/15", Slash, true},
		{"epoch seconds", "1710460800", EpochSeconds, true},
		{"epoch millis", "1710460800000", EpochMillis, true},
		{"datetime", "2024-03-15 08:30:00", DateTime, true},
		{"epoch as number", int64(1710460800), EpochSeconds, true},
		{"epoch as json float", float64(1710460800000), EpochMillis, true},
		{"plain word", "hello", FormatUnknown, false},
		{"short number", "42", FormatUnknown, false},
		{"invalid month", "2024-13-01", FormatUnknown, false},
		{"eleven digits", "17104608001", FormatUnknown, false},
		{"empty", "", FormatUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectFormat(tt.value)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetectFormat(%v) = (%v, %v), want (%v, %v)",
					tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFormatDateRoundTrip(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	formats := []Format{ISO, Compact, Slash, EpochSeconds, EpochMillis, DateTime}

	for _, f := range formats {
		wire := FormatDate(day, f)
		parsed, err := ParseDate(wire, f)
		if err != nil {
			t.Fatalf("ParseDate(%q, %v): %v", wire, f, err)
		}
		if !parsed.Equal(day) {
			t.Errorf("round trip via %v: got %v, want %v", f, parsed, day)
		}
		// The rendered value must detect as the same format.
		detected, ok := DetectFormat(wire)
		if !ok || detected != f {
			t.Errorf("DetectFormat(FormatDate(day, %v)) = (%v, %v), want (%v, true)",
				f, detected, ok, f)
		}
	}
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   map[string]Format
	}{
		{
			name: "named iso pair",
			params: map[string]any{
				"startDate": "2024-01-01",
				"endDate":   "2024-01-31",
				"page":      "1",
			},
			want: map[string]Format{"startDate": ISO, "endDate": ISO},
		},
		{
			name: "cache buster rejected",
			params: map[string]any{
				"_": "1710460800000",
			},
			want: map[string]Format{},
		},
		{
			name: "epoch needs date-ish name",
			params: map[string]any{
				"id":        "1710460800000",
				"beginTime": "1710460800000",
			},
			want: map[string]Format{"beginTime": EpochMillis},
		},
		{
			name: "array range value",
			params: map[string]any{
				"seDate": []any{"2024-01-01", "2024-01-31"},
			},
			want: map[string]Format{"seDate": ISO},
		},
		{
			name: "mixed array rejected",
			params: map[string]any{
				"seDate": []any{"2024-01-01", "20240131"},
			},
			want: map[string]Format{},
		},
		{
			name: "timestamp noise name rejected even for iso",
			params: map[string]any{
				"timestamp": "2024-01-01",
			},
			want: map[string]Format{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Identify(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("Identify() = %v, want %v", got, tt.want)
			}
			for k, f := range tt.want {
				if got[k] != f {
					t.Errorf("Identify()[%q] = %v, want %v", k, got[k], f)
				}
			}
		})
	}
}

func TestLooksLikeRealDateFilter(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		dateParams map[string]Format
		want       bool
	}{
		{
			name:       "no params",
			url:        "https://example.com/api/list",
			dateParams: map[string]Format{},
			want:       false,
		},
		{
			name:       "named pair passes",
			url:        "https://example.com/api/query",
			dateParams: map[string]Format{"startDate": ISO, "endDate": ISO},
			want:       true,
		},
		{
			name:       "unnamed formats rejected on plain endpoint",
			url:        "https://example.com/api/commonquery",
			dateParams: map[string]Format{"d1": ISO},
			want:       false,
		},
		{
			name:       "bulletin endpoint relaxes naming",
			url:        "https://example.com/bulletin/list",
			dateParams: map[string]Format{"d1": ISO},
			want:       true,
		},
		{
			name:       "se alias counts as named",
			url:        "https://example.com/api/commonquery",
			dateParams: map[string]Format{"seDate": ISO},
			want:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := LooksLikeRealDateFilter(tt.url, tt.dateParams)
			if got != tt.want {
				t.Errorf("LooksLikeRealDateFilter(%q) = %v (%q), want %v",
					tt.url, got, reason, tt.want)
			}
		})
	}
}

func TestNameClassifiers(t *testing.T) {
	if !IsStartName("beginDate") || !IsStartName("dateFrom") {
		t.Error("start-ish names not recognized")
	}
	if !IsEndName("endDate") || !IsEndName("dateTo") {
		t.Error("end-ish names not recognized")
	}
	if IsEndName("accessToken") {
		t.Error("token must not classify as end-ish")
	}
	if !IsRangeName("seDate") || !IsRangeName("dateRange") {
		t.Error("range-ish names not recognized")
	}
	if !IsNoiseName("_") || !IsNoiseName("_ts") || IsNoiseName("startDate") {
		t.Error("noise classification wrong")
	}
}
