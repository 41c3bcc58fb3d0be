package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "local", raw: "0912345678", want: []string{"0912345678", "+84912345678"}},
		{name: "international", raw: "+84912345678", want: []string{"+84912345678", "0912345678"}},
		{name: "bare country code", raw: "84912345678", want: []string{"84912345678", "+84912345678", "0912345678"}},
		{name: "spaces", raw: "091 234 5678", want: []string{"091 234 5678", "+84912345678", "0912345678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.raw))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("+84912345678"))
	assert.True(t, Valid("0912345678"))
	assert.False(t, Valid("12ab"))
	assert.False(t, Valid("+1234"))
}
