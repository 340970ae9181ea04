package mcp

import "testing"

func TestNegotiateProtocolVersion(t *testing.T) {
	cases := []struct {
		requested string
		want      string
	}{
		{"2024-11-05", "2024-11-05"},
		{"2025-03-26", "2025-03-26"},
		{LatestProtocolVersion, LatestProtocolVersion},
		{"1999-01-01", LatestProtocolVersion},
		{"", LatestProtocolVersion},
	}
	for _, tc := range cases {
		if got := NegotiateProtocolVersion(tc.requested); got != tc.want {
			t.Errorf("NegotiateProtocolVersion(%q) = %q, want %q", tc.requested, got, tc.want)
		}
	}
}

func TestLoggingLevelAtLeast(t *testing.T) {
	if !LoggingLevelError.AtLeast(LoggingLevelWarning) {
		t.Errorf("error should be at least warning")
	}
	if LoggingLevelDebug.AtLeast(LoggingLevelInfo) {
		t.Errorf("debug should not be at least info")
	}
	if !LoggingLevelInfo.AtLeast(LoggingLevelInfo) {
		t.Errorf("info should be at least info")
	}
	if IsValidLoggingLevel("verbose") {
		t.Errorf("verbose is not a protocol level")
	}
}
