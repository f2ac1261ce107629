package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/protocol"
)

func TestPlanner_MutualAidFollowsExhaustion(t *testing.T) {
	p := newPlanner(0, 0.8)

	m := p.onAlert(protocol.AlertObs{Type: "NO_BEDS_ANYWHERE"})
	require.NotNil(t, m)
	require.Equal(t, map[string]bool{"mutual_aid_activated": true}, m.Rules)
	require.Equal(t, "bot_1", m.ReqID)

	// Already on; a second exhaustion alert changes nothing.
	require.Nil(t, p.onAlert(protocol.AlertObs{Type: "NO_AMBULANCES"}))
	require.Nil(t, p.onAlert(protocol.AlertObs{Type: "NO_BEDS_ANYWHERE", Resolved: true}))

	m = p.onAlert(protocol.AlertObs{Type: "NO_AMBULANCES", Resolved: true})
	require.NotNil(t, m)
	require.Equal(t, map[string]bool{"mutual_aid_activated": false}, m.Rules)

	m = p.onAlert(protocol.AlertObs{Type: "OXYGEN_EXHAUSTED"})
	require.True(t, m.Rules["preserve_oxygen_reserves"])
	require.Nil(t, p.onAlert(protocol.AlertObs{Type: "SUPPLY_DEPLETED"}))
}

func TestPlanner_SurgeHysteresis(t *testing.T) {
	p := newPlanner(40, 0.7)

	require.Nil(t, p.onStep(protocol.StepMsg{Waiting: 39}))
	m := p.onStep(protocol.StepMsg{Waiting: 45})
	require.NotNil(t, m)
	require.Equal(t, 1.0, *m.Severity)

	require.Nil(t, p.onStep(protocol.StepMsg{Waiting: 25}))
	m = p.onStep(protocol.StepMsg{Waiting: 19})
	require.NotNil(t, m)
	require.Equal(t, 0.7, *m.Severity)
}

func TestPlanner_PoliciesPassSchema(t *testing.T) {
	p := newPlanner(10, 0.8)
	for _, m := range []*protocol.PolicyMsg{
		p.onStep(protocol.StepMsg{Waiting: 10}),
		p.onAlert(protocol.AlertObs{Type: "NO_BEDS_ANYWHERE"}),
	} {
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		_, err = protocol.DecodePolicy(raw)
		require.NoError(t, err, string(raw))
	}
}
