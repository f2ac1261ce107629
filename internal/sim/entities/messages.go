package entities

import "savegrid.ai/internal/sim/ledger"

// Message is a commit-time or event-time instruction to a single entity.
type Message interface {
	MessageType() string
}

// AdmitPatient reserves a bed of the acuity's class at the hospital.
type AdmitPatient struct {
	PatientID string
	Acuity    ledger.Acuity
	Tick      uint64
}

// ReleaseAdmission returns a reserved bed when the matching dispatch could not be committed.
type ReleaseAdmission struct {
	PatientID string
}

// PatientArrived marks an admission as physically present.
type PatientArrived struct {
	PatientID string
}

// StartMission dispatches an idle unit to a patient and on to a hospital.
type StartMission struct {
	PatientID  string
	Acuity     ledger.Acuity
	HospitalID string
	Pickup     ledger.Point
	Hospital   ledger.Point
	Tick       uint64
}

// DispatchSupply loads a depot vehicle for a hospital.
type DispatchSupply struct {
	Kind          string
	Quantity      int
	DestinationID string
	Destination   ledger.Point
	Urgency       ledger.Urgency
	Tick          uint64
}

// ReceiveSupply credits a completed delivery to the hospital.
type ReceiveSupply struct {
	Kind     string
	Quantity int
}

// OverridePolicy changes authority severity and rule flags.
type OverridePolicy struct {
	Override ledger.Override
}

func (AdmitPatient) MessageType() string { return "admit_patient" }
func (ReleaseAdmission) MessageType() string { return "release_admission" }
func (PatientArrived) MessageType() string { return "patient_arrived" }
func (StartMission) MessageType() string { return "start_mission" }
func (DispatchSupply) MessageType() string { return "dispatch_supply" }
func (ReceiveSupply) MessageType() string { return "receive_supply" }
func (OverridePolicy) MessageType() string { return "override_policy" }

type EventKind string

const (
	EventDischarged      EventKind = "discharged"
	EventPickedUp        EventKind = "picked_up"
	EventDroppedOff      EventKind = "dropped_off"
	EventDelivered       EventKind = "delivered"
	EventSeverityDecayed EventKind = "severity_decayed"
	EventOxygenExhausted EventKind = "oxygen_exhausted"
	EventFuelExhausted   EventKind = "fuel_exhausted"
)

// Event is a cross-entity effect produced by Step and applied after all entities have stepped.
type Event struct {
	Kind       EventKind      `json:"kind"`
	Tick       uint64         `json:"tick"`
	Source     string         `json:"source"`
	PatientID  string         `json:"patient_id,omitempty"`
	HospitalID string         `json:"hospital_id,omitempty"`
	UnitID     string         `json:"unit_id,omitempty"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	Quantity   int            `json:"quantity,omitempty"`
	Urgency    ledger.Urgency `json:"urgency,omitempty"`
	Value      float64        `json:"value,omitempty"`
}
