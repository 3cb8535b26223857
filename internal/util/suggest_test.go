package util

import (
	"reflect"
	"testing"
)

func TestClosestMatch(t *testing.T) {
	candidates := []string{"lymphocyte", "monocyte", "technically_unfit", "giant_platelet"}

	tests := []struct {
		input string
		want  string
	}{
		{"lymphocyt", "lymphocyte"},
		{"Monocyte", "monocyte"},
		{"technicaly_unfit", "technically_unfit"},
		{"completely_unrelated_label", ""},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ClosestMatch(tc.input, candidates, 3); got != tc.want {
				t.Errorf("ClosestMatch(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"blast", "blast", 0},
	}

	for _, tc := range tests {
		if got := levenshteinDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"  ", nil},
		{"rois", []string{"rois"}},
		{"rois, sessions ,consensus", []string{"rois", "sessions", "consensus"}},
		{"a,,b", []string{"a", "b"}},
	}

	for _, tc := range tests {
		if got := SplitList(tc.input); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
