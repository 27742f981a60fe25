package provider

import (
	"context"
	"fmt"
	"math/big"
)

// Oracle 把链注册表适配成跨链余额查询器。
// 余额永远实时取自链上节点。
type Oracle struct {
	chains *Registry
}

// NewOracle 构造余额查询器。
func NewOracle(chains *Registry) *Oracle {
	return &Oracle{chains: chains}
}

// Balance 查询单个地址的单项资产余额。
func (o *Oracle) Balance(ctx context.Context, chainName, address, asset string) (*big.Int, error) {
	client, ok := o.chains.Client(chainName)
	if !ok {
		return nil, fmt.Errorf("链 %s 未配置", chainName)
	}
	return client.Balance(ctx, address, asset)
}

// Balances 批量查询 地址 × 资产 的余额矩阵。
func (o *Oracle) Balances(ctx context.Context, chainName string, addresses, assets []string) (map[string]map[string]*big.Int, error) {
	client, ok := o.chains.Client(chainName)
	if !ok {
		return nil, fmt.Errorf("链 %s 未配置", chainName)
	}
	return client.Balances(ctx, addresses, assets)
}
