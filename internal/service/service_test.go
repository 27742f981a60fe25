package service

import (
	"math/big"
	"testing"

	"AgentTreasury/internal/ledger"
)

const (
	agentAddr = "0x00000000000000000000000000000000000000Aa"
	safeAddr  = "0x00000000000000000000000000000000000000Cc"
)

func sampleService(multisig string) *Service {
	return &Service{
		ID:             "svc-1",
		AgentAddresses: []string{agentAddr},
		Chains: map[string]ChainConfig{
			"gnosis": {
				ServiceID: 7,
				Multisig:  multisig,
				Params: UserParams{
					FundRequirements: map[string]FundRequirement{
						ledger.NativeAsset: {
							Agent: big.NewInt(100),
							Safe:  big.NewInt(500),
						},
					},
				},
			},
		},
	}
}

func TestIsOwnAddressIsCaseInsensitive(t *testing.T) {
	svc := sampleService(safeAddr)

	if !svc.IsOwnAddress("gnosis", "0x00000000000000000000000000000000000000AA") {
		t.Fatal("agent address must match regardless of checksum casing")
	}
	if !svc.IsOwnAddress("gnosis", "0x00000000000000000000000000000000000000cc") {
		t.Fatal("multisig address must match regardless of checksum casing")
	}
	if svc.IsOwnAddress("gnosis", "0x00000000000000000000000000000000000000dd") {
		t.Fatal("foreign address must not match")
	}
	// 多签只在它自己的链上有效。
	if svc.IsOwnAddress("base", safeAddr) {
		t.Fatal("multisig must not match on another chain")
	}
}

func TestInitialFundingAmountsOnlyWithoutSafe(t *testing.T) {
	svc := sampleService("")

	amounts := svc.InitialFundingAmounts()

	if amounts.Get("gnosis", agentAddr, ledger.NativeAsset).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected agent seed: %s", amounts.Get("gnosis", agentAddr, ledger.NativeAsset))
	}
	if amounts.Get("gnosis", ledger.MasterSafePlaceholder, ledger.NativeAsset).Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected safe seed: %s", amounts.Get("gnosis", ledger.MasterSafePlaceholder, ledger.NativeAsset))
	}
}

func TestInitialFundingAmountsSkipsDeployedSafe(t *testing.T) {
	svc := sampleService(safeAddr)

	amounts := svc.InitialFundingAmounts()

	if !amounts.IsZero() {
		t.Fatalf("deployed safe chain must not require seeds: %s", amounts)
	}
}

func TestHasDeployedSafe(t *testing.T) {
	if sampleService("").HasDeployedSafe("gnosis") {
		t.Fatal("empty multisig means no safe")
	}
	if !sampleService(safeAddr).HasDeployedSafe("gnosis") {
		t.Fatal("non-empty multisig means a deployed safe")
	}
	if sampleService(safeAddr).HasDeployedSafe("base") {
		t.Fatal("unknown chain has no safe")
	}
}
