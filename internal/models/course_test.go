package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradingSchemeLetter(t *testing.T) {
	scheme := GradingScheme{
		{Name: "B", Value: 0.8},
		{Name: "A", Value: 0.9},
		{Name: "C", Value: 0.7},
	}

	assert.Equal(t, "A", scheme.Letter(95))
	assert.Equal(t, "A", scheme.Letter(91))
	assert.Equal(t, "B", scheme.Letter(89.99))
	assert.Equal(t, "C", scheme.Letter(75))
	assert.Equal(t, "C", scheme.Letter(12), "scores below every bound get the lowest entry")
	assert.Equal(t, "", GradingScheme(nil).Letter(95))
}
