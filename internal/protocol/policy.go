package protocol

import (
	"encoding/json"
	"fmt"

	"savegrid.ai/schemas"
)

// DecodePolicy parses a POLICY message and validates it against policy.schema.json.
func DecodePolicy(raw []byte) (PolicyMsg, error) {
	var m PolicyMsg
	sch, err := schemas.Compile("policy.schema.json")
	if err != nil {
		return m, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return m, fmt.Errorf("policy: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return m, fmt.Errorf("policy: %w", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("policy: %w", err)
	}
	if m.ProtocolVersion != Version {
		return m, fmt.Errorf("policy: unsupported protocol_version %q", m.ProtocolVersion)
	}
	return m, nil
}

// Ack builds the ACK for reqID; a non-empty code marks it rejected.
func Ack(reqID string, tick uint64, code, msg string) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		AckFor:          reqID,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
		ServerTick:      tick,
	}
}
