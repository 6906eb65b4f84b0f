package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloat(t *testing.T) {
	v, err := ParseFloat(" 90 ")
	require.NoError(t, err)
	assert.Equal(t, 90.0, v)

	for _, bad := range []string{"", "abc", "NaN", "+Inf", "1e400"} {
		_, err := ParseFloat(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "21.50", FormatFloat(21.5, 2))
	assert.Equal(t, "22", FormatFloat(21.5, 0))
	assert.Equal(t, "21.5", FormatFloat(21.5, -1))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Seconds(0.1))
	assert.Equal(t, 5*time.Second, Seconds(5))
}
