package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrSessionBusy     = "E_SESSION_BUSY"
	ErrInternal        = "E_INTERNAL"

	// Allocation rejections (hard constraints).
	ErrNoBed           = "E_NO_BED"
	ErrNoICU           = "E_NO_ICU"
	ErrICURequired     = "E_ICU_REQUIRED"
	ErrUnitOverload    = "E_UNIT_OVERLOAD"
	ErrUnitUnavailable = "E_UNIT_UNAVAILABLE"
	ErrNoInventory     = "E_NO_INVENTORY"
	ErrNoVehicle       = "E_NO_VEHICLE"
	ErrUnknownTarget   = "E_UNKNOWN_TARGET"
	ErrBadProposal     = "E_BAD_PROPOSAL"
)

// Allocation warnings (soft constraints). They never block a commit.
const (
	WarnOxygenReserve = "W_OXYGEN_RESERVE"
	WarnLowFuel       = "W_LOW_FUEL"
	WarnLoadSpread    = "W_LOAD_SPREAD"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrSessionBusy:     {},
	ErrInternal:        {},
	ErrNoBed:           {},
	ErrNoICU:           {},
	ErrICURequired:     {},
	ErrUnitOverload:    {},
	ErrUnitUnavailable: {},
	ErrNoInventory:     {},
	ErrNoVehicle:       {},
	ErrUnknownTarget:   {},
	ErrBadProposal:     {},
	WarnOxygenReserve:  {},
	WarnLowFuel:        {},
	WarnLoadSpread:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// IsWarning reports whether code is a soft-constraint code.
func IsWarning(code string) bool {
	switch code {
	case WarnOxygenReserve, WarnLowFuel, WarnLoadSpread:
		return true
	}
	return false
}
