package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"savegrid.ai/internal/protocol"
	"savegrid.ai/schemas"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := schemas.Compile(name)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func asAny(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_AllCompile(t *testing.T) {
	names := schemas.Names()
	if len(names) < 5 {
		t.Fatalf("embedded schemas=%v", names)
	}
	for _, n := range names {
		compile(t, n)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(asAny(t, v)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(t, "hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "dashboard",
		Role:            "operator",
	})

	validate(compile(t, "welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		ClientID:        "c1",
		Tick:            3,
		Scenario:        protocol.ScenarioRef{Name: "flood", Digest: "abc", Hospitals: 3, Ambulances: 5, Seed: 42},
		Capabilities:    protocol.ServerCapsObs{Policy: true, Alerts: true},
	})

	sev := 0.6
	validate(compile(t, "policy.schema.json"), protocol.PolicyMsg{
		Type:            protocol.TypePolicy,
		ProtocolVersion: protocol.Version,
		ReqID:           "r1",
		Severity:        &sev,
		Rules:           map[string]bool{"mutual_aid_activated": true},
		Reason:          "regional mutual aid agreed",
	})

	validate(compile(t, "step.schema.json"), protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		Tick:            1,
		Committed: []protocol.AllocationObs{{
			Seq: 0, Kind: "patient_assignment", Subject: "patient_000", Target: "hospital_b",
			Resource: "icu_bed", Quantity: 1, Score: 0.61, Rationale: "closest ICU",
		}},
		Rejected: []protocol.RejectionObs{{
			Seq: 2, Kind: "supply_allocation", Subject: "supply_central", Target: "hospital_a",
			Code: protocol.ErrNoVehicle, Reason: "no vehicle",
		}},
		Warnings:  []protocol.WarningObs{{Code: protocol.WarnLoadSpread, Message: "spread 0.55"}},
		Alerts:    []protocol.AlertObs{},
		Objective: protocol.ObjectiveObs{Cost: 12.5, UnservedCritical: 1},
		Waiting:   7,
		Digest:    strings.Repeat("ab", 32),
	})
}

func TestSchemas_RejectBadPolicy(t *testing.T) {
	s := compile(t, "policy.schema.json")
	cases := map[string]string{
		"severity out of range": `{"type":"POLICY","protocol_version":"1.0","req_id":"r","severity":1.5}`,
		"unknown rule":          `{"type":"POLICY","protocol_version":"1.0","req_id":"r","rules":{"free_pizza":true}}`,
		"nothing to change":     `{"type":"POLICY","protocol_version":"1.0","req_id":"r"}`,
		"missing req_id":        `{"type":"POLICY","protocol_version":"1.0","severity":0.5}`,
	}
	for name, raw := range cases {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := s.Validate(v); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
