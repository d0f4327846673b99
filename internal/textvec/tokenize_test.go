package textvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"ascii words", "The Cat sat", []string{"the", "cat", "sat"}},
		{"single letters dropped", "a b cd", []string{"cd"}},
		{"punctuation splits", "foo,bar-baz_qux", []string{"foo", "bar", "baz_qux"}},
		{"cjk run is one token", "脾虚湿困，肝肾阴虚", []string{"脾虚湿困", "肝肾阴虚"}},
		{"single cjk char dropped", "脾", nil},
		{"digits", "A1 22 3", []string{"a1", "22"}},
		{"empty", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Tokenize(tc.in))
		})
	}
}
