package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gotest.tools/v3/assert"

	"github.com/lovasko-rewrite/nemo/pkg/channel"
)

func TestCollectExportsSentTotal(t *testing.T) {
	ch, err := channel.OpenV4(0, 0, 0, 0)
	assert.NilError(t, err)
	defer ch.Close()
	ch.Counters.SentTotal.Store(5)

	c := NewChannelCollector(prometheus.Labels{"role": "requester"})
	c.Add(ch)

	reg := prometheus.NewRegistry()
	assert.NilError(t, reg.Register(c))

	families, err := reg.Gather()
	assert.NilError(t, err)

	var found bool
	for _, fam := range families {
		if fam.GetName() != "nemo_channel_sent_total" {
			continue
		}
		found = true
		for _, m := range fam.GetMetric() {
			assert.Equal(t, m.GetCounter().GetValue(), float64(5))
		}
	}
	assert.Assert(t, found)
}
