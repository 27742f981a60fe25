package service

import (
	"context"
	"math/big"
	"strings"

	"AgentTreasury/internal/ledger"
	"AgentTreasury/internal/registry"
)

// FundRequirement 描述某种资产的一次性种子金额，区分 agent 密钥与服务 Safe。
type FundRequirement struct {
	Agent *big.Int `json:"agent"`
	Safe  *big.Int `json:"safe"`
}

// UserParams 是运营者为单条链配置的资金与质押参数。
type UserParams struct {
	UseStaking       bool                       `json:"use_staking"`
	StakingProgramID string                     `json:"staking_program_id"`
	CostOfBond       *big.Int                   `json:"cost_of_bond"`
	FundRequirements map[string]FundRequirement `json:"fund_requirements"` // 资产 → 种子金额
}

// ChainConfig 是服务在单条链上的部署信息。
type ChainConfig struct {
	ServiceID uint64     `json:"service_id"`
	Multisig  string     `json:"multisig"`  // 服务 Safe 地址，未部署时为空
	AgentIDs  []uint64   `json:"agent_ids"` // 注册表中的 agent 槽位，用于逐槽位读取链上 bond
	Params    UserParams `json:"user_params"`
}

// Service 描述一个跨链部署的自治 agent 服务。
// 协调器只读取这里的字段，链上状态始终以注册表为准。
type Service struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	AgentAddresses []string               `json:"agent_addresses"`
	Chains         map[string]ChainConfig `json:"chains"`
}

// HasDeployedSafe 判断服务在指定链上是否已经部署过多签。
func (s *Service) HasDeployedSafe(chainName string) bool {
	if s == nil {
		return false
	}
	cfg, ok := s.Chains[chainName]
	return ok && cfg.Multisig != ""
}

// IsOwnAddress 判断目标地址是否属于本服务（agent 密钥或已部署多签）。
func (s *Service) IsOwnAddress(chainName, address string) bool {
	if s == nil {
		return false
	}
	for _, agent := range s.AgentAddresses {
		if equalAddress(agent, address) {
			return true
		}
	}
	if cfg, ok := s.Chains[chainName]; ok && cfg.Multisig != "" && equalAddress(cfg.Multisig, address) {
		return true
	}
	return false
}

// InitialFundingAmounts 返回服务的一次性种子账本。
// 仅在服务 Safe 尚未部署的链上有效；Safe 的份额记在占位键下。
func (s *Service) InitialFundingAmounts() ledger.Amounts {
	amounts := make(ledger.Amounts)
	if s == nil {
		return amounts
	}
	for chainName, cfg := range s.Chains {
		if cfg.Multisig != "" {
			continue
		}
		for asset, req := range cfg.Params.FundRequirements {
			if req.Agent != nil && req.Agent.Sign() > 0 {
				for _, agent := range s.AgentAddresses {
					amounts.Accumulate(chainName, agent, asset, req.Agent)
				}
			}
			if req.Safe != nil && req.Safe.Sign() > 0 {
				amounts.Accumulate(chainName, ledger.MasterSafePlaceholder, asset, req.Safe)
			}
		}
	}
	return amounts
}

// LifecycleReader 查询服务在链上的当前生命周期状态。
type LifecycleReader interface {
	GetServiceInfo(ctx context.Context, chainName string, serviceID uint64) (registry.ServiceInfo, error)
}

// Manager 供后台对账任务遍历托管的服务。
type Manager interface {
	List(ctx context.Context) ([]*Service, error)
	Get(ctx context.Context, id string) (*Service, error)
}

// 地址比较不区分大小写，EIP-55 校验和差异不影响判定。
func equalAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
