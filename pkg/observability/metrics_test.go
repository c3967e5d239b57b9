package observability_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/arbor/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.Expansion(observability.ExpansionApplied, 0)
	m.Expansion(observability.ExpansionApplied, 0)
	m.ContributorFailure("ext", "connector")
	m.Migration("copy")
	m.StateWrite(nil)
	m.StateWrite(errors.New("disk full"))
	m.SetNodes(3)

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Positive(t, count)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP arbor_nodes Number of nodes currently stored in the graph.
# TYPE arbor_nodes gauge
arbor_nodes 3
`), "arbor_nodes"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.Expansion(observability.ExpansionFailed, 0)
		m.ContributorFailure("ext", "connector")
		m.Migration("reject")
		m.StateWrite(nil)
		m.SetNodes(1)
	})
}
