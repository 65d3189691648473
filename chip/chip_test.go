package chip

import "testing"

func TestClassFromFeatureBits(t *testing.T) {
	cases := []struct {
		feature uint32
		want    FeatureClass
	}{
		{0x00000000, FeatureFPGA},
		{0x00000500, FeatureASIC},
		{0xFFFFF0FF, FeatureFPGA}, // only bits 8-11 matter
	}
	for _, c := range cases {
		ch := &Chip{Feature: c.feature}
		if got := ch.Class(); got != c.want {
			t.Errorf("Class() for feature %#x = %v, want %v", c.feature, got, c.want)
		}
	}
}

func TestPerfIsCoresTimesMHz(t *testing.T) {
	ch := &Chip{NumCores: 200, MHz: 600}
	if got, want := ch.Perf(), uint64(200*600); got != want {
		t.Errorf("Perf() = %d, want %d", got, want)
	}
}

func TestTransitionLinearPath(t *testing.T) {
	ch := &Chip{State: Uninitialized}
	path := []State{Detected, PLLLocked, BISTPassed, Ready, Running, Ready}
	for _, to := range path {
		if err := ch.Transition(to); err != nil {
			t.Fatalf("Transition(%v) from %v: %v", to, ch.State, err)
		}
	}
}

func TestTransitionRejectsSkippedStates(t *testing.T) {
	ch := &Chip{State: Uninitialized}
	if err := ch.Transition(Ready); err == nil {
		t.Fatal("Transition(Uninitialized -> Ready) should be rejected")
	}
}

func TestTransitionToDisabledAlwaysAllowed(t *testing.T) {
	for _, from := range []State{Uninitialized, Detected, PLLLocked, BISTPassed, Ready, Running} {
		ch := &Chip{State: from}
		if err := ch.Transition(Disabled); err != nil {
			t.Errorf("Transition(%v -> Disabled) failed: %v", from, err)
		}
		if !ch.Disabled {
			t.Errorf("Disabled flag not set after transition from %v", from)
		}
	}
}

func TestRecordFailureDisablesAtThreshold(t *testing.T) {
	ch := &Chip{State: Ready}
	for i := 1; i < DisableFailThreshold; i++ {
		ch.RecordFailure(int64(i))
		if ch.Disabled {
			t.Fatalf("chip disabled after only %d failures, threshold is %d", i, DisableFailThreshold)
		}
	}
	ch.RecordFailure(int64(DisableFailThreshold))
	if !ch.Disabled {
		t.Fatalf("chip not disabled after %d failures", DisableFailThreshold)
	}
	if ch.CooldownBeginMS != int64(DisableFailThreshold) {
		t.Errorf("CooldownBeginMS = %d, want %d", ch.CooldownBeginMS, DisableFailThreshold)
	}
}

func TestClearFailuresResetsCounter(t *testing.T) {
	ch := &Chip{State: Ready}
	ch.RecordFailure(1)
	ch.ClearFailures()
	if ch.FailCount != 0 {
		t.Errorf("FailCount = %d after ClearFailures, want 0", ch.FailCount)
	}
}
