package funding

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"AgentTreasury/internal/ledger"
	"AgentTreasury/internal/registry"
	"AgentTreasury/internal/service"
)

type fakeServices struct {
	services []*service.Service
	failWith error
}

func (f *fakeServices) List(context.Context) ([]*service.Service, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.services, nil
}

func (f *fakeServices) Get(_ context.Context, id string) (*service.Service, error) {
	for _, svc := range f.services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return nil, errors.New("not found")
}

func stakedService() *service.Service {
	svc := testService()
	chainCfg := svc.Chains["gnosis"]
	chainCfg.Params.UseStaking = true
	chainCfg.Params.StakingProgramID = "0x00000000000000000000000000000000000000ff"
	svc.Chains["gnosis"] = chainCfg
	return svc
}

func TestReconcilerClaimsRewardsForStakedServices(t *testing.T) {
	oracle := newFakeOracle()
	oracle.set("gnosis", testEOA, ledger.NativeAsset, 400)
	wallets := newFakeWallets(map[string]string{"gnosis": testSafe})
	reg := &fakeRegistry{stakingState: registry.StakingStaked}
	coordinator, _, _ := newTestCoordinator(oracle, wallets, reg, time.Minute)

	services := &fakeServices{services: []*service.Service{stakedService()}}
	reconciler := NewReconciler(coordinator, services, wallets, reg, time.Minute)

	reconciler.runOnce(context.Background())

	if reg.claimed != 1 {
		t.Fatalf("unexpected claim count: got %d want 1", reg.claimed)
	}
}

func TestReconcilerSkipsUnstakedServices(t *testing.T) {
	oracle := newFakeOracle()
	oracle.set("gnosis", testEOA, ledger.NativeAsset, 400)
	wallets := newFakeWallets(map[string]string{"gnosis": testSafe})
	reg := &fakeRegistry{stakingState: registry.StakingUnstaked}
	coordinator, _, _ := newTestCoordinator(oracle, wallets, reg, time.Minute)

	services := &fakeServices{services: []*service.Service{stakedService()}}
	reconciler := NewReconciler(coordinator, services, wallets, reg, time.Minute)

	reconciler.runOnce(context.Background())

	if reg.claimed != 0 {
		t.Fatalf("unstaked service must not claim, got %d", reg.claimed)
	}
}

func TestReconcilerClaimFailureDoesNotBlockRefill(t *testing.T) {
	oracle := newFakeOracle()
	oracle.set("gnosis", testEOA, ledger.NativeAsset, 150) // 低于半阈值，需要补给
	oracle.set("gnosis", testSafe, ledger.NativeAsset, 1000)
	wallets := newFakeWallets(map[string]string{"gnosis": testSafe})
	reg := &fakeRegistry{stakingState: registry.StakingStaked}
	coordinator, _, _ := newTestCoordinator(oracle, wallets, reg, time.Minute)

	services := &fakeServices{failWith: errors.New("boom")}
	reconciler := NewReconciler(coordinator, services, wallets, reg, time.Minute)

	reconciler.runOnce(context.Background())

	calls := wallets.calls()
	if len(calls) != 1 || calls[0].amount.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("refill phase must run despite claim failure: %+v", calls)
	}
}

func TestReconcilerStopsOnContextCancel(t *testing.T) {
	oracle := newFakeOracle()
	wallets := newFakeWallets(map[string]string{"gnosis": testSafe})
	reg := &fakeRegistry{}
	coordinator, _, _ := newTestCoordinator(oracle, wallets, reg, time.Minute)
	reconciler := NewReconciler(coordinator, &fakeServices{}, wallets, reg, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- reconciler.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected exit error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancellation")
	}
}
