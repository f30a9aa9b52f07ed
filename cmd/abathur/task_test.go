package main

import (
	"reflect"
	"testing"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{"nil stays nil", nil, nil},
		{"unique ids unchanged", []string{"a", "b"}, []string{"a", "b"}},
		{"duplicates removed in order", []string{"a", "b", "a", "c", "b"}, []string{"a", "b", "c"}},
		{"empty ids dropped", []string{"", "a", ""}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedupe(tt.ids)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("dedupe(%v) = %v, want %v", tt.ids, got, tt.want)
			}
		})
	}
}

func TestPlural(t *testing.T) {
	if got := plural(1, "dependency", "dependencies"); got != "dependency" {
		t.Errorf("plural(1) = %q, want %q", got, "dependency")
	}
	if got := plural(2, "dependency", "dependencies"); got != "dependencies" {
		t.Errorf("plural(2) = %q, want %q", got, "dependencies")
	}
}
