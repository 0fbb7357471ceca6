package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowLabel(t *testing.T) {
	assert.Equal(t, "A", rowLabel(0))
	assert.Equal(t, "Z", rowLabel(25))
	assert.Equal(t, "AA", rowLabel(26))
	assert.Equal(t, "AZ", rowLabel(51))
	assert.Equal(t, "BA", rowLabel(52))
}
