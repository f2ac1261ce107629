package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/sim/ledger"
)

func TestTracker(t *testing.T) {
	s, err := ledger.NewSet(
		[]*ledger.ResourcePool{
			ledger.NewResourcePool("a", "A", ledger.Point{}, 100, 15, 10, 2, 1000), // 85%
			ledger.NewResourcePool("b", "B", ledger.Point{}, 100, 60, 10, 5, 1000), // 40%
		},
		[]*ledger.TransportUnit{
			{ID: "U1", Capacity: 2, Fuel: 0.9},
			{ID: "U2", Capacity: 2, Fuel: 0.9, Status: ledger.UnitEnRoutePickup},
		},
		ledger.NewSupplyDepot("d", "D", ledger.Point{}, nil, 1),
		&ledger.AuthorityState{ID: "gov", Severity: 0.8},
	)
	require.NoError(t, err)

	tr := New()
	assert.Equal(t, "Simulation in progress...", tr.Summary())
	_, ok := tr.Improvement()
	assert.False(t, ok)

	tr.RecordInitial(0, s, []ledger.Patient{{Acuity: 1}, {Acuity: 2}, {Acuity: 3}, {Acuity: 4}})
	require.NotNil(t, tr.Initial)
	assert.Equal(t, 2, tr.Initial.CriticalPatients)
	assert.Equal(t, 1, tr.Initial.Overloaded)

	tr.RecordServed(1, 10)
	tr.RecordServed(3, 15)
	tr.RecordDelivery(true)
	tr.RecordDelivery(false)
	tr.RecordTick(1, s, 2)

	m := tr.Current(2)
	assert.Equal(t, 1, m.LivesSaved)
	assert.Equal(t, 2, m.PatientsServed)
	assert.Equal(t, 12.5, m.AvgResponseMinutes)
	assert.Equal(t, 2, m.Deliveries)
	assert.Equal(t, 1, m.ShortagesAvoided)
	assert.Equal(t, 1, m.OverloadsPrevented)

	require.Len(t, tr.History, 1)
	assert.Equal(t, 62.5, tr.History[0].BedUtilization)
	assert.Equal(t, 50.0, tr.History[0].AmbulanceUtilization)

	im, ok := tr.Improvement()
	require.True(t, ok)
	assert.Equal(t, 50.0, im.HandledPct)
	assert.Equal(t, 50.0, im.CriticalSavedPct)
	assert.Contains(t, tr.Summary(), "1 lives saved")
}

func TestTracker_HistoryBounded(t *testing.T) {
	s, err := ledger.NewSet(
		[]*ledger.ResourcePool{ledger.NewResourcePool("a", "A", ledger.Point{}, 10, 10, 1, 1, 10)},
		[]*ledger.TransportUnit{{ID: "U1", Capacity: 1, Fuel: 1}},
		ledger.NewSupplyDepot("d", "D", ledger.Point{}, nil, 0),
		&ledger.AuthorityState{ID: "gov"},
	)
	require.NoError(t, err)
	tr := New()
	tr.MaxHistory = 3
	for i := uint64(1); i <= 5; i++ {
		tr.RecordTick(i, s, 0)
	}
	require.Len(t, tr.History, 3)
	assert.Equal(t, uint64(3), tr.History[0].Tick)
}
