package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		sep   string
		want  []string
	}{
		{"empty", "", ",", nil},
		{"only spaces", "   ", ",", nil},
		{"single", "a:9092", ",", []string{"a:9092"}},
		{"trims and drops blanks", " a:9092, b:9092,,", ",", []string{"a:9092", "b:9092"}},
		{"dedupes after trimming", "a, a ,b", ",", []string{"a", "b"}},
		{"keeps order", "c,b,a", ",", []string{"c", "b", "a"}},
		{"other separator", "x; y", ";", []string{"x", "y"}},
		{"only separators", ",,,", ",", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.input, tt.sep))
		})
	}
}
