package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

type fakeClock struct {
	local float64
	global float64
	synced bool
}

func (c *fakeClock) Local() float64 { return c.local }
func (c *fakeClock) Global() (float64, bool) { return c.global, c.synced }

func TestScheduler_DispatchesInTimestampOrder(t *testing.T) {
	clk := &fakeClock{local: 10}
	s := New(clk)

	m1 := &types.Message{Address: "/a"}
	m2 := &types.Message{Address: "/b"}
	m3 := &types.Message{Address: "/c"}
	s.ScheduleLocal(m3, 3)
	s.ScheduleLocal(m1, 1)
	s.ScheduleLocal(m2, 2)

	due := s.Due()
	assert.Equal(t, []*types.Message{m1, m2, m3}, due)
}

func TestScheduler_WithholdsMessagesNotYetDue(t *testing.T) {
	clk := &fakeClock{local: 1}
	s := New(clk)
	future := &types.Message{Address: "/future"}
	s.ScheduleLocal(future, 100)

	assert.Empty(t, s.Due())
	assert.Equal(t, 1, s.PendingLocal())
}

func TestScheduler_GlobalQueueRequiresSync(t *testing.T) {
	clk := &fakeClock{local: 0, global: 100, synced: false}
	s := New(clk)
	s.ScheduleGlobal(&types.Message{Address: "/g"}, 1)

	assert.Empty(t, s.Due())

	clk.synced = true
	assert.Len(t, s.Due(), 1)
}

func TestScheduler_TiesBreakByInsertionOrder(t *testing.T) {
	clk := &fakeClock{local: 10}
	s := New(clk)
	first := &types.Message{Address: "/first"}
	second := &types.Message{Address: "/second"}
	s.ScheduleLocal(first, 5)
	s.ScheduleLocal(second, 5)

	due := s.Due()
	assert.Equal(t, []*types.Message{first, second}, due)
}
