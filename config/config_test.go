package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyClosesDisputesAtAutoRelease(t *testing.T) {
	saved := AppConfig
	t.Cleanup(func() { AppConfig = saved })

	AppConfig.CompletionGraceHours = 24
	AppConfig.DisputeWindowHours = 72
	p := Policy()
	assert.Equal(t, 24*time.Hour, p.CompletionGrace)
	assert.Equal(t, 24*time.Hour, p.DisputeWindow)
}
