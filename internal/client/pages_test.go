package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageSpec(t *testing.T) {
	got, err := ParsePageSpec(" 1-3, 5 ,7-7")
	require.NoError(t, err)
	assert.Equal(t, []PageRange{{1, 3}, {5, 5}, {7, 7}}, got)

	got, err = ParsePageSpec("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParsePageSpec_Invalid(t *testing.T) {
	for _, spec := range []string{"0", "3-1", "1,,2", "a-b", "-2", "1-"} {
		_, err := ParsePageSpec(spec)
		assert.Error(t, err, spec)
	}
}

func TestParsePageList(t *testing.T) {
	got, err := ParsePageList("2, 4,9")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 9}, got)

	_, err = ParsePageList("2-4")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"45", 45},
		{"1:05", 65},
		{"01:02:03", 3723},
		{" 90 ", 90},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "1:60", "1:2:3:4", "x", "-5"} {
		_, err := ParseClock(bad)
		assert.True(t, IsValidation(err), bad)
	}
}
