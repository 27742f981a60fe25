package registry

import "testing"

func TestCanTransitionFollowsLifecycle(t *testing.T) {
	cases := []struct {
		from, to ServiceState
		want     bool
	}{
		{StateNonExistent, StatePreRegistration, true},
		{StatePreRegistration, StateActiveRegistration, true},
		{StateActiveRegistration, StateFinishedRegistration, true},
		{StateFinishedRegistration, StateDeployed, true},
		{StateDeployed, StateTerminatedBonded, true},
		{StateTerminatedBonded, StateUnbonded, true},
		{StateNonExistent, StateDeployed, false},
		{StateDeployed, StatePreRegistration, false},
		{StateUnbonded, StateTerminatedBonded, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s): got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSecurityDepositBondedWindow(t *testing.T) {
	bonded := []ServiceState{StateActiveRegistration, StateFinishedRegistration, StateDeployed}
	unbonded := []ServiceState{StateNonExistent, StatePreRegistration, StateTerminatedBonded, StateUnbonded}

	for _, state := range bonded {
		if !state.SecurityDepositBonded() {
			t.Errorf("%s must count the security deposit as bonded", state)
		}
	}
	for _, state := range unbonded {
		if state.SecurityDepositBonded() {
			t.Errorf("%s must not count the security deposit as bonded", state)
		}
	}
}

func TestAgentBondsBondedWindow(t *testing.T) {
	bonded := []ServiceState{StateFinishedRegistration, StateDeployed}
	unbonded := []ServiceState{StateNonExistent, StatePreRegistration, StateActiveRegistration, StateTerminatedBonded, StateUnbonded}

	for _, state := range bonded {
		if !state.AgentBondsBonded() {
			t.Errorf("%s must count agent bonds as bonded", state)
		}
	}
	for _, state := range unbonded {
		if state.AgentBondsBonded() {
			t.Errorf("%s must not count agent bonds as bonded", state)
		}
	}
}

func TestCanStakeTransition(t *testing.T) {
	cases := []struct {
		from, to StakingState
		want     bool
	}{
		{StakingUnstaked, StakingStaked, true},
		{StakingStaked, StakingEvicted, true},
		{StakingEvicted, StakingUnstaked, true},
		{StakingStaked, StakingUnstaked, true},
		{StakingUnstaked, StakingEvicted, false},
		{StakingEvicted, StakingStaked, false},
	}
	for _, tc := range cases {
		if got := CanStakeTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanStakeTransition(%s, %s): got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
