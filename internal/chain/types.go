package chain

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// Client 抽象单条链的只读查询与转账提交能力。
// 余额永远实时查询，系统内不做任何余额记账。
type Client interface {
	// Name 返回链的可读名称。
	Name() string
	// Balance 查询地址持有的某种资产数量，资产为原生哨兵或代币合约地址。
	Balance(ctx context.Context, address, asset string) (*big.Int, error)
	// Balances 批量查询 地址 × 资产 的余额矩阵。
	Balances(ctx context.Context, addresses, assets []string) (map[string]map[string]*big.Int, error)
	// Call 执行合约只读调用，供注册表与质押客户端使用。
	Call(ctx context.Context, contract string, data []byte) ([]byte, error)
	// Transfer 从 from 向 to 转移资产，返回交易哈希。
	Transfer(ctx context.Context, from, to, asset string, amount *big.Int) (string, error)
	// Submit 提交一笔带 calldata 的合约交易，例如质押奖励领取。
	Submit(ctx context.Context, from, contract string, value *big.Int, data []byte) (string, error)
	// Close 释放底层连接。
	Close()
}

// Signer 把交易签名委托给外部的钱包实现，密钥管理不在本系统范围内。
type Signer interface {
	SignTx(ctx context.Context, chain string, from string, tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error)
}

// Definitions 对应 configs/chains.yaml 的结构。
type Definitions struct {
	Chains map[string]Definition `yaml:"chains"`
}

// Definition 描述单条链的端点信息。
type Definition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	BatchRPCURL string `yaml:"batch_rpc_url"`
	Description string `yaml:"description"`
}

// LoadDefinitions 解析链配置 YAML 文件。
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Chains: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]Definition{}
	}
	return defs, nil
}
