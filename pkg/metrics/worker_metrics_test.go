package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClassificationsTotal(t *testing.T) {
	before := testutil.ToFloat64(ClassificationsTotal.WithLabelValues("trash"))
	ClassificationsTotal.WithLabelValues("trash").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ClassificationsTotal.WithLabelValues("trash")))
}

func TestResult(t *testing.T) {
	assert.Equal(t, "success", Result(nil))
	assert.Equal(t, "error", Result(errors.New("x")))
}
