package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(""))
	assert.Equal(t, "conflict", Result("conflict"))
}

func TestTransitionsCounter(t *testing.T) {
	before := testutil.ToFloat64(Transitions.WithLabelValues("CALLED", "ok"))
	Transitions.WithLabelValues("CALLED", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Transitions.WithLabelValues("CALLED", "ok")))
}
