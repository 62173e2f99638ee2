package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSource struct {
	name  string
	stats map[string]int
}

func (s stubSource) Name() string          { return s.name }
func (s stubSource) Stats() map[string]int { return s.stats }

func TestRefreshPopulatesRows(t *testing.T) {
	src := stubSource{
		name: "demo",
		stats: map[string]int{
			"total": 5, "waiting": 1, "running": 2, "paused": 0,
			"succeeded": 1, "failed": 1, "cancelled": 0,
		},
	}
	m := New(src, 4)
	m.refresh()

	rows := m.table.Rows()
	assert.Len(t, rows, 8)
	assert.Equal(t, "Total", rows[0][0])
	assert.Equal(t, "5", rows[0][1])
}

func TestUtilizationBarHandlesZeroSlots(t *testing.T) {
	src := stubSource{name: "demo", stats: map[string]int{"running": 0}}
	m := New(src, 0)
	assert.Equal(t, float64(0), m.utilization(0))
	assert.Equal(t, "", m.utilizationBar(0))
}

func TestViewRendersTitleAndFooter(t *testing.T) {
	src := stubSource{name: "demo", stats: map[string]int{}}
	m := New(src, 4)
	view := m.View()
	assert.Contains(t, view, "demo")
	assert.Contains(t, view, "Press 'q' to quit")
}
