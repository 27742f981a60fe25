package funding

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	xerrors "AgentTreasury/internal/errors"
	"AgentTreasury/internal/ledger"
	"AgentTreasury/internal/observability/metrics"
	"AgentTreasury/internal/registry"
	"AgentTreasury/internal/service"
	"AgentTreasury/internal/wallet"
	"AgentTreasury/pkg/logger"
)

// BalanceOracle 实时查询链上余额，系统内不缓存、不记账。
type BalanceOracle interface {
	Balance(ctx context.Context, chain, address, asset string) (*big.Int, error)
	Balances(ctx context.Context, chain string, addresses, assets []string) (map[string]map[string]*big.Int, error)
}

// WalletManager 提供主钱包视图与转账执行。
type WalletManager interface {
	Load(ledgerType wallet.LedgerType) (*wallet.Wallet, error)
	Transfer(ctx context.Context, chain, from, to, asset string, amount *big.Int) (string, error)
}

// RegistryClient 聚合服务注册表与质押合约的链上只读访问。
type RegistryClient interface {
	GetServiceInfo(ctx context.Context, chain string, serviceID uint64) (registry.ServiceInfo, error)
	GetOperatorBalance(ctx context.Context, chain, operator string, serviceID uint64) (*big.Int, error)
	GetAgentBond(ctx context.Context, chain string, serviceID, agentID uint64) (*big.Int, error)
	GetStakingParams(ctx context.Context, chain, contract string) (registry.StakingParams, error)
	GetStakingState(ctx context.Context, chain string, serviceID uint64, contract string) (registry.StakingState, error)
	CanStake(ctx context.Context, chain string, serviceID uint64, state registry.ServiceState, target string, candidates []string) (bool, error)
	ClaimRewards(ctx context.Context, chain, contract, from string, serviceID uint64) (string, error)
}

// Config 是协调器的静态参数。
type Config struct {
	// LedgerType 指定协调器操作的主钱包账本类型。
	LedgerType wallet.LedgerType
	// MasterEOATopup 是每条链上 Master EOA 的原生币补给目标。
	// 触发阈值取目标值的一半。
	MasterEOATopup map[string]*big.Int
	// StakingPrograms 是每条链上已知的候选质押合约地址。
	StakingPrograms map[string][]string
}

// SuppressReason 说明 agent 注资请求当前被抑制的原因。
type SuppressReason string

const (
	SuppressNone       SuppressReason = ""
	SuppressInProgress SuppressReason = "funding_in_progress"
	SuppressCooldown   SuppressReason = "cooldown"
)

// Requirements 是一次资金需求计算的完整快照。
type Requirements struct {
	Balances            ledger.Amounts `json:"balances"`
	Bonded              ledger.Amounts `json:"bonded"`
	Protocol            ledger.Amounts `json:"protocol_requirement"`
	ProtocolShortfall   ledger.Amounts `json:"protocol_shortfall"`
	InitialShortfall    ledger.Amounts `json:"initial_shortfall"`
	EOAShortfall        ledger.Amounts `json:"eoa_shortfall"`
	EOACritical         ledger.Amounts `json:"eoa_critical_shortfall"`
	MasterSafeShortfall ledger.Amounts `json:"master_safe_shortfall"`
	Total               ledger.Amounts `json:"total_requirement"`
	AgentRequests       []Request      `json:"agent_requests"`
	SuppressReason      SuppressReason `json:"suppress_reason,omitempty"`
	IsRefillRequired    bool           `json:"is_refill_required"`
	AllowStartAgent     bool           `json:"allow_start_agent"`
}

// Coordinator 把账本代数、缺口计算与并发控制编排成对外操作。
type Coordinator struct {
	oracle   BalanceOracle
	wallets  WalletManager
	registry RegistryClient
	inbox    Inbox
	journal  Journal
	tracker  *Tracker
	cfg      Config
	logger   *slog.Logger
}

// Option 定义协调器的可选配置。
type Option func(*Coordinator)

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator 构造资金协调器。
func NewCoordinator(oracle BalanceOracle, wallets WalletManager, reg RegistryClient,
	inbox Inbox, journal Journal, tracker *Tracker, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		oracle:   oracle,
		wallets:  wallets,
		registry: reg,
		inbox:    inbox,
		journal:  journal,
		tracker:  tracker,
		cfg:      cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = logger.Named("funding")
	}
	return c
}

// mergeBalances 把 src 的叶子写入 dst，重复键以 src 为准。
func mergeBalances(dst, src ledger.Amounts) {
	src.Walk(func(chain, address, asset string, value *big.Int) {
		dst.Set(chain, address, asset, value)
	})
}

// resolveMasterSafe 返回链上 Master Safe 的地址，未部署时返回占位键。
func resolveMasterSafe(w *wallet.Wallet, chainName string) string {
	if safe, ok := w.SafeOn(chainName); ok {
		return safe
	}
	return ledger.MasterSafePlaceholder
}

// ComputeFundingRequirements 计算服务当前的完整资金需求快照。
func (c *Coordinator) ComputeFundingRequirements(ctx context.Context, svc *service.Service) (*Requirements, error) {
	if svc == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "服务不能为空")
	}
	w, err := c.wallets.Load(c.cfg.LedgerType)
	if err != nil {
		return nil, err
	}

	req := &Requirements{
		Balances:          make(ledger.Amounts),
		Bonded:            make(ledger.Amounts),
		Protocol:          make(ledger.Amounts),
		ProtocolShortfall: make(ledger.Amounts),
		AllowStartAgent:   true,
	}

	// 协议绑定需求与已绑定资产，按生命周期状态闸控。
	for chainName, chainCfg := range svc.Chains {
		if err := c.computeProtocol(ctx, svc, w, chainName, chainCfg, req); err != nil {
			return nil, err
		}
	}
	req.ProtocolShortfall = ledger.SubClamped(req.Protocol, req.Bonded)

	// 一次性种子缺口，仅在服务 Safe 从未部署过的链上有效。
	initial := svc.InitialFundingAmounts()
	initialBalances, err := c.liveBalances(ctx, initial)
	if err != nil {
		return nil, err
	}
	req.InitialShortfall = Shortfalls(initialBalances, initial, initial)
	mergeBalances(req.Balances, initialBalances)

	// agent 动态注资请求；注资进行中或处于冷却窗口时上报为空并标注原因。
	inProgress, coolingDown := c.tracker.Status(svc.ID)
	switch {
	case inProgress:
		req.SuppressReason = SuppressInProgress
	case coolingDown:
		req.SuppressReason = SuppressCooldown
	default:
		pending, err := c.inbox.Pending(ctx, svc.ID)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "读取注资请求失败")
		}
		req.AgentRequests = pending
	}

	// Master EOA 运维缺口：触发阈值取 topup 的一半，原生币不足 topup/4
	// 时整个缺口升级为紧急，绕过冷却。
	eoaBalances, eoaTopups, err := c.masterEOALedgers(ctx, w, svc)
	if err != nil {
		return nil, err
	}
	mergeBalances(req.Balances, eoaBalances)
	eoaShortfall := Shortfalls(eoaBalances, eoaTopups.DivInt(2), eoaTopups)
	critical, remaining := SplitCritical(eoaBalances, eoaTopups, eoaShortfall)
	req.EOACritical = critical
	req.EOAShortfall = remaining

	// EOA 超出自身 topup 的原生币划归未来 Master Safe 的资金池。
	excess, _ := RedistributeExcess(eoaBalances, eoaTopups, func(chainName string) string {
		return resolveMasterSafe(w, chainName)
	})

	// 把各层缺口按已解析的 Master Safe 地址向上折叠。
	requestAmounts := AggregateRequests(req.AgentRequests)
	safeRequirement := make(ledger.Amounts)
	for _, component := range []ledger.Amounts{req.EOACritical, req.ProtocolShortfall, req.InitialShortfall, requestAmounts} {
		component.Walk(func(chainName, _ string, asset string, value *big.Int) {
			safeRequirement.Accumulate(chainName, resolveMasterSafe(w, chainName), asset, value)
		})
	}
	req.Total = ledger.Sum(safeRequirement)

	safeAvailable, err := c.masterSafeBalances(ctx, safeRequirement)
	if err != nil {
		return nil, err
	}
	mergeBalances(req.Balances, safeAvailable)
	req.MasterSafeShortfall = ledger.SubClamped(safeRequirement, ledger.Sum(safeAvailable, excess))

	req.IsRefillRequired = !req.MasterSafeShortfall.IsZero() || !req.EOACritical.IsZero()

	// 任一已部署 Master Safe 不足、或存在未解决的 EOA 紧急缺口时，
	// 都不允许启动 agent。
	req.MasterSafeShortfall.Walk(func(_, address string, _ string, value *big.Int) {
		if address != ledger.MasterSafePlaceholder && value.Sign() > 0 {
			req.AllowStartAgent = false
		}
	})
	if !req.EOACritical.IsZero() {
		req.AllowStartAgent = false
	}
	return req, nil
}

// computeProtocol 计算单条链上的协议需求与已绑定资产。
func (c *Coordinator) computeProtocol(ctx context.Context, svc *service.Service, w *wallet.Wallet,
	chainName string, chainCfg service.ChainConfig, req *Requirements) error {
	params := chainCfg.Params
	costOfBond := params.CostOfBond
	if costOfBond == nil {
		costOfBond = new(big.Int)
	}
	numAgents := int64(len(svc.AgentAddresses))
	if numAgents == 0 {
		numAgents = 1
	}
	safeKey := resolveMasterSafe(w, chainName)

	var info registry.ServiceInfo
	info.State = registry.StateNonExistent
	if chainCfg.ServiceID != 0 {
		loaded, err := c.registry.GetServiceInfo(ctx, chainName, chainCfg.ServiceID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeChainFailure, err,
				fmt.Sprintf("读取链 %s 服务状态失败", chainName))
		}
		info = loaded
	}

	bondTotal, err := c.agentBondTotal(ctx, chainName, chainCfg, costOfBond, numAgents)
	if err != nil {
		return err
	}

	if params.UseStaking {
		// 质押项目以代币计价：最小质押额作为保证金，外加每个实例的 bond。
		stakingParams, err := c.registry.GetStakingParams(ctx, chainName, params.StakingProgramID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeChainFailure, err,
				fmt.Sprintf("读取链 %s 质押参数失败", chainName))
		}
		required := new(big.Int).Add(bondTotal, stakingParams.MinStakingDeposit)
		req.Protocol.Accumulate(chainName, safeKey, stakingParams.StakingToken, required)

		if err := c.accumulateBonded(ctx, svc, chainName, chainCfg, info, stakingParams.StakingToken, req); err != nil {
			return err
		}
		state, err := c.registry.GetStakingState(ctx, chainName, chainCfg.ServiceID, params.StakingProgramID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeChainFailure, err,
				fmt.Sprintf("读取链 %s 质押状态失败", chainName))
		}
		if state != registry.StakingUnstaked {
			req.Bonded.Accumulate(chainName, safeKey, stakingParams.StakingToken, stakingParams.MinStakingDeposit)
		}
		return nil
	}

	// 非质押服务以原生币计价：保证金等于单实例 bond 的上限。
	required := new(big.Int).Add(bondTotal, costOfBond)
	req.Protocol.Accumulate(chainName, safeKey, ledger.NativeAsset, required)
	return c.accumulateBonded(ctx, svc, chainName, chainCfg, info, ledger.NativeAsset, req)
}

// agentBondTotal 返回服务全部 agent 槽位的保证金总额。
// 已注册且声明了槽位时逐个读取链上 bond，否则按配置的单实例 bond 估算。
func (c *Coordinator) agentBondTotal(ctx context.Context, chainName string, chainCfg service.ChainConfig,
	costOfBond *big.Int, numAgents int64) (*big.Int, error) {
	if chainCfg.ServiceID == 0 || len(chainCfg.AgentIDs) == 0 {
		return new(big.Int).Mul(costOfBond, big.NewInt(numAgents)), nil
	}
	total := new(big.Int)
	for _, agentID := range chainCfg.AgentIDs {
		bond, err := c.registry.GetAgentBond(ctx, chainName, chainCfg.ServiceID, agentID)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeChainFailure, err,
				fmt.Sprintf("读取链 %s agent %d 保证金失败", chainName, agentID))
		}
		total.Add(total, bond)
	}
	return total, nil
}

// StakingEligibility 判断服务在指定链上能否进入其配置的质押项目。
// 未启用质押、尚未注册或未指定项目的服务直接判定为不可质押。
func (c *Coordinator) StakingEligibility(ctx context.Context, svc *service.Service, chainName string) (bool, error) {
	if svc == nil {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "服务不能为空")
	}
	chainCfg, ok := svc.Chains[chainName]
	if !ok {
		return false, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("服务 %s 未部署在链 %s", svc.ID, chainName))
	}
	if !chainCfg.Params.UseStaking || chainCfg.ServiceID == 0 || chainCfg.Params.StakingProgramID == "" {
		return false, nil
	}
	info, err := c.registry.GetServiceInfo(ctx, chainName, chainCfg.ServiceID)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeChainFailure, err,
			fmt.Sprintf("读取链 %s 服务状态失败", chainName))
	}
	eligible, err := c.registry.CanStake(ctx, chainName, chainCfg.ServiceID, info.State,
		chainCfg.Params.StakingProgramID, c.cfg.StakingPrograms[chainName])
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeChainFailure, err,
			fmt.Sprintf("检查链 %s 质押条件失败", chainName))
	}
	return eligible, nil
}

// accumulateBonded 按生命周期状态累计已绑定的保证金与实例 bond。
// 保证金仅在 [ACTIVE_REGISTRATION, TERMINATED_BONDED) 计入，
// 实例 bond 仅在 [FINISHED_REGISTRATION, TERMINATED_BONDED) 计入。
func (c *Coordinator) accumulateBonded(ctx context.Context, svc *service.Service, chainName string,
	chainCfg service.ChainConfig, info registry.ServiceInfo, asset string, req *Requirements) error {
	w, err := c.wallets.Load(c.cfg.LedgerType)
	if err != nil {
		return err
	}
	safeKey := resolveMasterSafe(w, chainName)

	if info.State.SecurityDepositBonded() && info.SecurityDeposit != nil {
		req.Bonded.Accumulate(chainName, safeKey, asset, info.SecurityDeposit)
	}
	if info.State.AgentBondsBonded() {
		operator, ok := w.SafeOn(chainName)
		if ok {
			balance, err := c.registry.GetOperatorBalance(ctx, chainName, operator, chainCfg.ServiceID)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeChainFailure, err,
					fmt.Sprintf("读取链 %s 运营方余额失败", chainName))
			}
			req.Bonded.Accumulate(chainName, safeKey, asset, balance)
		}
	}
	return nil
}

// liveBalances 查询种子账本涉及的真实地址余额，占位键按零处理。
func (c *Coordinator) liveBalances(ctx context.Context, amounts ledger.Amounts) (ledger.Amounts, error) {
	balances, err := c.batchBalances(ctx, amounts)
	if err != nil {
		return nil, err
	}
	amounts.Walk(func(chainName, address, asset string, _ *big.Int) {
		if address == ledger.MasterSafePlaceholder {
			balances.Set(chainName, address, asset, new(big.Int))
		}
	})
	return balances, nil
}

// batchBalances 把账本的叶子按链聚合，每条链只发一次 batch 余额查询。
// 矩阵可能含有账本之外的组合，只回填账本中请求过的叶子；占位键不查询。
func (c *Coordinator) batchBalances(ctx context.Context, amounts ledger.Amounts) (ledger.Amounts, error) {
	type query struct {
		addresses []string
		assets    []string
		seenAddr  map[string]bool
		seenAsset map[string]bool
	}
	queries := make(map[string]*query)
	amounts.Walk(func(chainName, address, asset string, _ *big.Int) {
		if address == ledger.MasterSafePlaceholder {
			return
		}
		q := queries[chainName]
		if q == nil {
			q = &query{seenAddr: map[string]bool{}, seenAsset: map[string]bool{}}
			queries[chainName] = q
		}
		if !q.seenAddr[address] {
			q.seenAddr[address] = true
			q.addresses = append(q.addresses, address)
		}
		if !q.seenAsset[asset] {
			q.seenAsset[asset] = true
			q.assets = append(q.assets, asset)
		}
	})

	matrices := make(map[string]map[string]map[string]*big.Int, len(queries))
	for chainName, q := range queries {
		matrix, err := c.oracle.Balances(ctx, chainName, q.addresses, q.assets)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeChainFailure, err,
				fmt.Sprintf("批量查询链 %s 余额失败", chainName))
		}
		matrices[chainName] = matrix
	}

	balances := make(ledger.Amounts)
	amounts.Walk(func(chainName, address, asset string, _ *big.Int) {
		if address == ledger.MasterSafePlaceholder {
			return
		}
		value := new(big.Int)
		if row, ok := matrices[chainName][address]; ok {
			if v, ok := row[asset]; ok && v != nil {
				value.Set(v)
			}
		}
		balances.Set(chainName, address, asset, value)
	})
	return balances, nil
}

// masterEOALedgers 组装 Master EOA 的余额账本与 topup 目标账本。
func (c *Coordinator) masterEOALedgers(ctx context.Context, w *wallet.Wallet, svc *service.Service) (balances, topups ledger.Amounts, err error) {
	balances = make(ledger.Amounts)
	topups = make(ledger.Amounts)
	for chainName := range svc.Chains {
		topup, ok := c.cfg.MasterEOATopup[chainName]
		if !ok || topup == nil {
			continue
		}
		balance, balErr := c.oracle.Balance(ctx, chainName, w.Address, ledger.NativeAsset)
		if balErr != nil {
			return nil, nil, xerrors.Wrap(xerrors.CodeChainFailure, balErr,
				fmt.Sprintf("查询链 %s Master EOA 余额失败", chainName))
		}
		balances.Set(chainName, w.Address, ledger.NativeAsset, balance)
		topups.Set(chainName, w.Address, ledger.NativeAsset, topup)
	}
	return balances, topups, nil
}

// masterSafeBalances 查询需求账本涉及的各 Master Safe 的实时余额，
// 未部署的占位键不产生查询。
func (c *Coordinator) masterSafeBalances(ctx context.Context, requirement ledger.Amounts) (ledger.Amounts, error) {
	return c.batchBalances(ctx, requirement)
}

// FundChainAmounts 从 Master Safe 向账本中的每个正叶子发起一笔转账。
// 执行前先做聚合充足性预检，预检失败时不发出任何转账。
func (c *Coordinator) FundChainAmounts(ctx context.Context, amounts ledger.Amounts) error {
	return c.fundAmounts(ctx, "", amounts)
}

func (c *Coordinator) fundAmounts(ctx context.Context, serviceID string, amounts ledger.Amounts) error {
	w, err := c.wallets.Load(c.cfg.LedgerType)
	if err != nil {
		return err
	}

	// 预检：每条链上 Master Safe 的余额必须覆盖该链的聚合需求。
	// 聚合需求为零的链不需要 Safe，也不发起任何查询。
	required := amounts.AggregateByAsset()
	for chainName, assets := range required {
		positive := false
		for _, need := range assets {
			if need.Sign() > 0 {
				positive = true
				break
			}
		}
		if !positive {
			continue
		}
		safe, ok := w.SafeOn(chainName)
		if !ok {
			return xerrors.New(CodeInsufficientFunds,
				fmt.Sprintf("链 %s 尚未部署 Master Safe", chainName))
		}
		for asset, need := range assets {
			if need.Sign() <= 0 {
				continue
			}
			available, err := c.oracle.Balance(ctx, chainName, safe, asset)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeChainFailure, err,
					fmt.Sprintf("查询链 %s Master Safe 余额失败", chainName))
			}
			if available.Cmp(need) < 0 {
				return xerrors.New(CodeInsufficientFunds,
					fmt.Sprintf("链 %s 资产 %s 需求 %s 超过 Master Safe 可用 %s",
						chainName, asset, need.String(), available.String()),
					xerrors.WithMetadata("required", need.String()),
					xerrors.WithMetadata("available", available.String()))
			}
		}
	}

	// 逐叶子执行转账；非正叶子记录日志后跳过，绝不发出。
	var failure error
	amounts.Walk(func(chainName, address, asset string, value *big.Int) {
		if failure != nil {
			return
		}
		if value.Sign() <= 0 {
			c.logger.Debug("跳过非正转账叶子",
				slog.String("chain", chainName),
				slog.String("address", address),
				slog.String("asset", asset),
				slog.String("amount", value.String()))
			return
		}
		safe, _ := w.SafeOn(chainName)
		entry := NewEntry(serviceID, chainName, safe, address, asset, value)
		hash, err := c.wallets.Transfer(ctx, chainName, safe, address, asset, value)
		if err != nil {
			entry.Status = EntryFailed
			entry.Reason = err.Error()
			c.recordEntry(ctx, entry)
			metrics.ObserveTransfer(chainName, asset, string(EntryFailed))
			failure = err
			return
		}
		entry.Status = EntrySubmitted
		entry.TxHash = hash
		c.recordEntry(ctx, entry)
		metrics.ObserveTransfer(chainName, asset, string(EntrySubmitted))
		logger.Audit().Info("资金转账已提交",
			slog.String("service_id", serviceID),
			slog.String("chain", chainName),
			slog.String("to", address),
			slog.String("asset", asset),
			slog.String("amount", value.String()),
			slog.String("tx_hash", hash))
	})
	return failure
}

func (c *Coordinator) recordEntry(ctx context.Context, entry Entry) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(ctx, entry); err != nil {
		// 流水失败不阻断资金操作，只告警。
		c.logger.Error("写入转账流水失败",
			slog.Any("error", err),
			slog.String("entry_id", entry.ID))
	}
}

// FundService 为单个服务注资，受服务级互斥锁保护。
// 同一服务已有注资在进行时立即返回 FundingInProgress；
// 目标地址必须是该服务的 agent 密钥或已部署多签，否则拒绝且不转账。
// 转账在锁外执行，成功后开启冷却窗口。
func (c *Coordinator) FundService(ctx context.Context, svc *service.Service, amounts ledger.Amounts) error {
	if svc == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "服务不能为空")
	}
	if err := c.tracker.Begin(svc.ID); err != nil {
		return err
	}
	success := false
	defer c.finishFunding(svc.ID, &success)

	var invalid error
	amounts.Walk(func(chainName, address, _ string, _ *big.Int) {
		if invalid != nil {
			return
		}
		if !svc.IsOwnAddress(chainName, address) {
			invalid = xerrors.Wrap(CodeInvalidDestination, ErrInvalidDestination,
				fmt.Sprintf("地址 %s 不属于服务 %s", address, svc.ID),
				xerrors.WithMetadata("chain", chainName),
				xerrors.WithMetadata("address", address))
		}
	})
	if invalid != nil {
		return invalid
	}

	if err := c.fundAmounts(ctx, svc.ID, amounts); err != nil {
		return err
	}
	success = true

	if err := c.inbox.Clear(ctx, svc.ID); err != nil {
		c.logger.Warn("清理注资请求失败",
			slog.Any("error", err),
			slog.String("service_id", svc.ID))
	}
	return nil
}

// finishFunding 清除进行中标志；成功时一并开启冷却窗口。
func (c *Coordinator) finishFunding(serviceID string, success *bool) {
	c.tracker.Finish(serviceID, *success)
}

// FundMasterEOA 把每条链上的 Master EOA 补到 topup 目标。
// 余额高于半阈值的链不动作。
func (c *Coordinator) FundMasterEOA(ctx context.Context) error {
	w, err := c.wallets.Load(c.cfg.LedgerType)
	if err != nil {
		return err
	}

	for chainName, topup := range c.cfg.MasterEOATopup {
		if topup == nil || topup.Sign() <= 0 {
			continue
		}
		safe, ok := w.SafeOn(chainName)
		if !ok {
			continue
		}
		balance, err := c.oracle.Balance(ctx, chainName, w.Address, ledger.NativeAsset)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeChainFailure, err,
				fmt.Sprintf("查询链 %s Master EOA 余额失败", chainName))
		}
		half := new(big.Int).Div(topup, big.NewInt(2))
		if balance.Cmp(half) >= 0 {
			continue
		}
		amount := new(big.Int).Sub(topup, balance)

		shortfall := make(ledger.Amounts)
		shortfall.Set(chainName, w.Address, ledger.NativeAsset, amount)
		if err := c.fundAmounts(ctx, "", shortfall); err != nil {
			return err
		}
		c.logger.Info("Master EOA 已补给",
			slog.String("chain", chainName),
			slog.String("from", safe),
			slog.String("amount", amount.String()))
	}
	return nil
}
