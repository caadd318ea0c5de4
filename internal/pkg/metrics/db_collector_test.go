package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakePoolStat struct {
	acquired, idle, constructing, max int32
	wait                              time.Duration
}

func (f fakePoolStat) AcquiredConns() int32           { return f.acquired }
func (f fakePoolStat) IdleConns() int32               { return f.idle }
func (f fakePoolStat) ConstructingConns() int32       { return f.constructing }
func (f fakePoolStat) MaxConns() int32                { return f.max }
func (f fakePoolStat) AcquireDuration() time.Duration { return f.wait }

func TestRecordPoolStat(t *testing.T) {
	recordPoolStat(fakePoolStat{acquired: 3, idle: 2, constructing: 1, max: 25, wait: 1500 * time.Millisecond})

	assert.Equal(t, 3.0, testutil.ToFloat64(DBPoolConnections.WithLabelValues("in_use")))
	assert.Equal(t, 2.0, testutil.ToFloat64(DBPoolConnections.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DBPoolConnections.WithLabelValues("constructing")))
	assert.Equal(t, 25.0, testutil.ToFloat64(DBPoolConnections.WithLabelValues("max")))
	assert.Equal(t, 1.5, testutil.ToFloat64(DBPoolAcquireWait))
}
