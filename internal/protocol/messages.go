package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	ClientName        string   `json:"client_name"`
	// Operator clients may send POLICY messages; observers only receive.
	Role string `json:"role,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	ClientID        string        `json:"client_id"`
	Tick            uint64        `json:"tick"`
	Scenario        ScenarioRef   `json:"scenario"`
	Capabilities    ServerCapsObs `json:"server_capabilities"`
}

type ScenarioRef struct {
	Name       string `json:"name"`
	Digest     string `json:"digest"`
	Hospitals  int    `json:"hospitals"`
	Ambulances int    `json:"ambulances"`
	Seed       uint64 `json:"seed"`
}

type ServerCapsObs struct {
	Policy bool `json:"policy,omitempty"`
	Alerts bool `json:"alerts,omitempty"`
}

// STEP (server -> client): one tick's report.
type StepMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Tick            uint64          `json:"tick"`
	Committed       []AllocationObs `json:"committed"`
	Rejected        []RejectionObs  `json:"rejected"`
	Warnings        []WarningObs    `json:"warnings"`
	Alerts          []AlertObs      `json:"alerts"`
	Objective       ObjectiveObs    `json:"objective"`
	Waiting         int             `json:"waiting"`
	Digest          string          `json:"digest"`
}

type AllocationObs struct {
	Seq        int     `json:"seq"`
	Kind       string  `json:"kind"`
	Subject    string  `json:"subject"`
	Target     string  `json:"target"`
	HospitalID string  `json:"hospital_id,omitempty"`
	Resource   string  `json:"resource"`
	Quantity   int     `json:"quantity"`
	Score      float64 `json:"score"`
	ETAMinutes float64 `json:"eta_minutes,omitempty"`
	Rationale  string  `json:"rationale"`
}

type RejectionObs struct {
	Seq     int    `json:"seq"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Target  string `json:"target"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

type WarningObs struct {
	Code    string `json:"code"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

type AlertObs struct {
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Protocol string   `json:"protocol"`
	Actions  []string `json:"actions"`
	Tick     uint64   `json:"tick"`
	Resolved bool     `json:"resolved,omitempty"`
}

type ObjectiveObs struct {
	Cost               float64 `json:"cost"`
	UnservedCritical   int     `json:"unserved_critical"`
	AvgResponseMinutes float64 `json:"avg_response_minutes"`
	Overloaded         int     `json:"overloaded_hospitals"`
	LoadVariance       float64 `json:"load_variance"`
}

// POLICY (client -> server): operator override of authority severity and rules.
type PolicyMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Severity        *float64        `json:"severity,omitempty"`
	Rules           map[string]bool `json:"rules,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// ALERT (server -> client): a failure condition activated or resolved.
type AlertMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Alert           AlertObs `json:"alert"`
}
