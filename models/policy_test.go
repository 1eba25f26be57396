package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedCapsDisputeWindow(t *testing.T) {
	p := DefaultPolicy()
	p.CompletionGrace = 24 * time.Hour
	p.DisputeWindow = 72 * time.Hour
	assert.Equal(t, 24*time.Hour, p.Normalized().DisputeWindow)

	p.DisputeWindow = 12 * time.Hour
	assert.Equal(t, 12*time.Hour, p.Normalized().DisputeWindow)

	def := DefaultPolicy()
	assert.Equal(t, def, def.Normalized())
}
