package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepFailed(t *testing.T) {
	ok := Step{Type: TypePlan, Name: "plan-1", ID: "/subscriptions/x"}
	assert.False(t, ok.Failed())

	bad := Step{Type: TypeMetricAlert, Name: "alert-1", Error: "conflict"}
	assert.True(t, bad.Failed())
}
