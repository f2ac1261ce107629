package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrBadRequest,
		ErrSessionBusy,
		ErrInternal,
		ErrNoBed,
		ErrNoICU,
		ErrICURequired,
		ErrUnitOverload,
		ErrUnitUnavailable,
		ErrNoInventory,
		ErrNoVehicle,
		ErrUnknownTarget,
		ErrBadProposal,
		WarnOxygenReserve,
		WarnLowFuel,
		WarnLoadSpread,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestIsWarning(t *testing.T) {
	if !IsWarning(WarnLoadSpread) || IsWarning(ErrNoBed) || IsWarning("") {
		t.Fatalf("warning classification mismatch")
	}
}
