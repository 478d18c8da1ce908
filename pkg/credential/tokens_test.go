package credential

import (
	"slices"
	"testing"
)

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Bearer abc", []string{"abc"}},
		{"Bearer a,b, c", []string{"a", "b", "c"}},
		{"bearer a", []string{"a"}},
		{"a,,b", []string{"a", "b"}},
		{"Bearer ", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitTokens(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("SplitTokens(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
