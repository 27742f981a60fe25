package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"AgentTreasury/internal/chain/provider"
	xerrors "AgentTreasury/internal/errors"
)

// LedgerType 区分不同密钥体系的钱包，目前仅有 EVM 一族。
type LedgerType string

const LedgerEthereum LedgerType = "ethereum"

// Wallet 表示一种账本类型下的主钱包视图：
// 一个 Master EOA 加上每条链至多一个 Master Safe。
// 协调器对该映射只读，Safe 的创建由独立的部署流程负责。
type Wallet struct {
	Address string            `json:"address"`
	Safes   map[string]string `json:"safes"` // 链名 → Master Safe 地址
}

// SafeOn 返回钱包在指定链上的 Master Safe 地址。
func (w *Wallet) SafeOn(chainName string) (string, bool) {
	if w == nil {
		return "", false
	}
	safe, ok := w.Safes[chainName]
	return safe, ok && safe != ""
}

// Manager 管理各账本类型的主钱包并代理转账执行。
// 私钥与签名不经过本包，由链客户端背后的签名器完成。
type Manager struct {
	chains *provider.Registry

	mu      sync.RWMutex
	wallets map[LedgerType]*Wallet
}

// NewManager 构造钱包管理器。
func NewManager(chains *provider.Registry, wallets map[LedgerType]*Wallet) *Manager {
	set := make(map[LedgerType]*Wallet, len(wallets))
	for lt, w := range wallets {
		set[lt] = w
	}
	return &Manager{chains: chains, wallets: set}
}

// Load 返回指定账本类型的主钱包。
func (m *Manager) Load(ledgerType LedgerType) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[ledgerType]
	if !ok || w == nil {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("账本类型 %s 没有配置钱包", ledgerType))
	}
	return w, nil
}

// Transfer 在指定链上从 from 向 to 转移资产，返回交易哈希。
func (m *Manager) Transfer(ctx context.Context, chainName, from, to, asset string, amount *big.Int) (string, error) {
	client, ok := m.chains.Client(chainName)
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("链 %s 未配置", chainName))
	}
	hash, err := client.Transfer(ctx, from, to, asset, amount)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("链 %s 转账失败", chainName))
	}
	return hash, nil
}
