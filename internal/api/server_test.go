package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AgentTreasury/internal/funding"
	"AgentTreasury/internal/ledger"
	"AgentTreasury/internal/registry"
	"AgentTreasury/internal/service"
	"AgentTreasury/internal/wallet"
)

const (
	testEOA   = "0x00000000000000000000000000000000000000e0"
	testSafe  = "0x00000000000000000000000000000000000000f0"
	testAgent = "0x00000000000000000000000000000000000000aa"
)

type fakeOracle struct {
	balances map[string]*big.Int
}

func (f *fakeOracle) Balance(_ context.Context, chain, address, asset string) (*big.Int, error) {
	if value, ok := f.balances[chain+"|"+address+"|"+asset]; ok {
		return new(big.Int).Set(value), nil
	}
	return new(big.Int), nil
}

func (f *fakeOracle) Balances(ctx context.Context, chain string, addresses, assets []string) (map[string]map[string]*big.Int, error) {
	out := make(map[string]map[string]*big.Int)
	for _, address := range addresses {
		out[address] = map[string]*big.Int{}
		for _, asset := range assets {
			balance, _ := f.Balance(ctx, chain, address, asset)
			out[address][asset] = balance
		}
	}
	return out, nil
}

type fakeWallets struct {
	wallet *wallet.Wallet
}

func (f *fakeWallets) Load(wallet.LedgerType) (*wallet.Wallet, error) { return f.wallet, nil }

func (f *fakeWallets) Transfer(context.Context, string, string, string, string, *big.Int) (string, error) {
	return "0xhash", nil
}

type fakeRegistry struct{}

func (fakeRegistry) GetServiceInfo(context.Context, string, uint64) (registry.ServiceInfo, error) {
	return registry.ServiceInfo{State: registry.StateDeployed}, nil
}

func (fakeRegistry) GetOperatorBalance(context.Context, string, string, uint64) (*big.Int, error) {
	return new(big.Int), nil
}

func (fakeRegistry) GetAgentBond(context.Context, string, uint64, uint64) (*big.Int, error) {
	return new(big.Int), nil
}

func (fakeRegistry) CanStake(context.Context, string, uint64, registry.ServiceState, string, []string) (bool, error) {
	return true, nil
}

func (fakeRegistry) GetStakingParams(context.Context, string, string) (registry.StakingParams, error) {
	return registry.StakingParams{}, nil
}

func (fakeRegistry) GetStakingState(context.Context, string, uint64, string) (registry.StakingState, error) {
	return registry.StakingUnstaked, nil
}

func (fakeRegistry) ClaimRewards(context.Context, string, string, string, uint64) (string, error) {
	return "0xclaim", nil
}

type fakeManager struct {
	services map[string]*service.Service
}

func (f *fakeManager) List(context.Context) ([]*service.Service, error) {
	out := make([]*service.Service, 0, len(f.services))
	for _, svc := range f.services {
		out = append(out, svc)
	}
	return out, nil
}

func (f *fakeManager) Get(_ context.Context, id string) (*service.Service, error) {
	if svc, ok := f.services[id]; ok {
		return svc, nil
	}
	return nil, nil
}

func newTestServer(safeBalance int64) (*Server, *funding.MemoryInbox) {
	oracle := &fakeOracle{balances: map[string]*big.Int{
		"gnosis|" + testSafe + "|" + ledger.NativeAsset: big.NewInt(safeBalance),
		"gnosis|" + testEOA + "|" + ledger.NativeAsset:  big.NewInt(400),
	}}
	wallets := &fakeWallets{wallet: &wallet.Wallet{
		Address: testEOA,
		Safes:   map[string]string{"gnosis": testSafe},
	}}
	inbox := funding.NewMemoryInbox()
	journal := funding.NewMemoryJournal()
	coordinator := funding.NewCoordinator(oracle, wallets, fakeRegistry{}, inbox, journal,
		funding.NewTracker(time.Minute), funding.Config{
			LedgerType:     "ethereum",
			MasterEOATopup: map[string]*big.Int{"gnosis": big.NewInt(400)},
		})
	services := &fakeManager{services: map[string]*service.Service{
		"svc-1": {
			ID:             "svc-1",
			AgentAddresses: []string{testAgent},
			Chains: map[string]service.ChainConfig{
				"gnosis": {
					ServiceID: 7,
					Multisig:  "0x00000000000000000000000000000000000000cc",
					Params:    service.UserParams{CostOfBond: big.NewInt(10)},
				},
			},
		},
		"svc-2": {
			ID:             "svc-2",
			AgentAddresses: []string{testAgent},
			Chains: map[string]service.ChainConfig{
				"gnosis": {
					ServiceID: 8,
					Multisig:  "0x00000000000000000000000000000000000000cd",
					Params: service.UserParams{
						CostOfBond:       big.NewInt(10),
						UseStaking:       true,
						StakingProgramID: "0x00000000000000000000000000000000000000ff",
					},
				},
			},
		},
	}}
	return NewServer(":0", coordinator, services, journal, inbox), inbox
}

func TestGetFundingRequirements(t *testing.T) {
	server, _ := newTestServer(1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/services/svc-1/funding", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var snapshot funding.Requirements
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetFundingUnknownServiceIs404(t *testing.T) {
	server, _ := newTestServer(1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/services/missing/funding", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStakingEligibilityEndpoint(t *testing.T) {
	server, _ := newTestServer(1000)

	// 启用了质押的服务：链上前置条件由注册表判定。
	req := httptest.NewRequest(http.MethodGet, "/api/v1/services/svc-2/staking?chain=gnosis", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body struct {
		Chain    string `json:"chain"`
		CanStake bool   `json:"can_stake"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Chain != "gnosis" || !body.CanStake {
		t.Fatalf("unexpected eligibility payload: %+v", body)
	}

	// 未启用质押的服务直接判定为不可质押。
	req = httptest.NewRequest(http.MethodGet, "/api/v1/services/svc-1/staking?chain=gnosis", nil)
	rec = httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.CanStake {
		t.Fatal("non-staking service must not be eligible")
	}
}

func TestStakingEligibilityRequiresChainParam(t *testing.T) {
	server, _ := newTestServer(1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/services/svc-1/staking", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestFundServiceForeignDestinationIs400(t *testing.T) {
	server, _ := newTestServer(1000)

	body := `{"amounts": {"gnosis": {"0x00000000000000000000000000000000000000dd": {"` + ledger.NativeAsset + `": "100"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/svc-1/fund", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: got %d want %d (%s)", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestFundServiceInsufficientFundsIs400(t *testing.T) {
	server, _ := newTestServer(10)

	body := `{"amounts": {"gnosis": {"` + testAgent + `": {"` + ledger.NativeAsset + `": "100"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/svc-1/fund", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: got %d want %d (%s)", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestFundServiceSuccess(t *testing.T) {
	server, _ := newTestServer(1000)

	body := `{"amounts": {"gnosis": {"` + testAgent + `": {"` + ledger.NativeAsset + `": "100"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/svc-1/fund", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestPublishRequestLandsInInbox(t *testing.T) {
	server, inbox := newTestServer(1000)

	body := `{"chain": "gnosis", "address": "` + testAgent + `", "asset": "` + ledger.NativeAsset + `", "amount": "42"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/svc-1/requests", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d want %d (%s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	pending, err := inbox.Pending(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected pending requests: %+v", pending)
	}
}

func TestPublishRequestBadAmountIs400(t *testing.T) {
	server, _ := newTestServer(1000)

	body := `{"chain": "gnosis", "address": "` + testAgent + `", "amount": "abc"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/svc-1/requests", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestJournalEndpointListsEntries(t *testing.T) {
	server, _ := newTestServer(1000)

	body := `{"amounts": {"gnosis": {"` + testAgent + `": {"` + ledger.NativeAsset + `": "100"}}}}`
	fund := httptest.NewRequest(http.MethodPost, "/api/v1/services/svc-1/fund", strings.NewReader(body))
	server.Routes().ServeHTTP(httptest.NewRecorder(), fund)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/journal?limit=5", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var entries []funding.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("unexpected entry count: got %d want 1", len(entries))
	}
}
