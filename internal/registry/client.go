package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"AgentTreasury/internal/chain/provider"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// serviceRegistryABIJSON 仅包含资金计算用到的只读方法。
const serviceRegistryABIJSON = `[
  {"constant":true,"inputs":[{"name":"serviceId","type":"uint256"}],"name":"getService","outputs":[{"name":"securityDeposit","type":"uint96"},{"name":"multisig","type":"address"},{"name":"configHash","type":"bytes32"},{"name":"threshold","type":"uint32"},{"name":"maxNumAgentInstances","type":"uint32"},{"name":"numAgentInstances","type":"uint32"},{"name":"state","type":"uint8"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"operator","type":"address"},{"name":"serviceId","type":"uint256"}],"name":"getOperatorBalance","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"serviceId","type":"uint256"},{"name":"agentId","type":"uint256"}],"name":"getAgentBond","outputs":[{"name":"bond","type":"uint256"}],"type":"function"}
]`

// stakingABIJSON 覆盖质押参数查询、状态查询与奖励领取。
const stakingABIJSON = `[
  {"constant":true,"inputs":[],"name":"minStakingDeposit","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"stakingToken","outputs":[{"name":"","type":"address"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"maxNumServices","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"availableRewards","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"getServiceIds","outputs":[{"name":"","type":"uint256[]"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"serviceId","type":"uint256"}],"name":"getStakingState","outputs":[{"name":"","type":"uint8"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"serviceId","type":"uint256"}],"name":"claim","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var (
	abiOnce     sync.Once
	registryABI abi.ABI
	stakingABI  abi.ABI
	abiErr      error
)

func loadABIs() error {
	abiOnce.Do(func() {
		registryABI, abiErr = abi.JSON(strings.NewReader(serviceRegistryABIJSON))
		if abiErr != nil {
			return
		}
		stakingABI, abiErr = abi.JSON(strings.NewReader(stakingABIJSON))
	})
	return abiErr
}

// ServiceInfo 汇总注册表中与资金计算相关的字段。
type ServiceInfo struct {
	SecurityDeposit      *big.Int
	Multisig             string
	Threshold            uint32
	MaxNumAgentInstances uint32
	NumAgentInstances    uint32
	State                ServiceState
}

// StakingParams 描述一个质押项目的关键参数。
type StakingParams struct {
	StakingToken      string
	MinStakingDeposit *big.Int
	MaxNumServices    *big.Int
	AvailableRewards  *big.Int
	NumStaked         int
}

// Client 通过链上只读调用访问服务注册表与质押合约。
// 每条链一个注册表合约地址，由配置提供。
type Client struct {
	chains    *provider.Registry
	contracts map[string]string // 链名 → 注册表合约地址
}

// NewClient 构造链上注册表客户端。
func NewClient(chains *provider.Registry, contracts map[string]string) *Client {
	set := make(map[string]string, len(contracts))
	for name, addr := range contracts {
		set[name] = addr
	}
	return &Client{chains: chains, contracts: set}
}

func (c *Client) call(ctx context.Context, chainName, contract string, parsed abi.ABI, method string, args ...any) ([]any, error) {
	if err := loadABIs(); err != nil {
		return nil, fmt.Errorf("解析注册表 ABI 失败: %w", err)
	}
	client, ok := c.chains.Client(chainName)
	if !ok {
		return nil, fmt.Errorf("链 %s 未在注册表中配置", chainName)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码 %s 调用失败: %w", method, err)
	}
	raw, err := client.Call(ctx, contract, data)
	if err != nil {
		return nil, err
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("解码 %s 返回值失败: %w", method, err)
	}
	return out, nil
}

// GetServiceInfo 读取服务在注册表中的当前快照。
func (c *Client) GetServiceInfo(ctx context.Context, chainName string, serviceID uint64) (ServiceInfo, error) {
	if err := loadABIs(); err != nil {
		return ServiceInfo{}, fmt.Errorf("解析注册表 ABI 失败: %w", err)
	}
	contract, ok := c.contracts[chainName]
	if !ok {
		return ServiceInfo{}, fmt.Errorf("链 %s 未配置服务注册表合约", chainName)
	}
	out, err := c.call(ctx, chainName, contract, registryABI, "getService", new(big.Int).SetUint64(serviceID))
	if err != nil {
		return ServiceInfo{}, err
	}
	if len(out) != 7 {
		return ServiceInfo{}, errors.New("getService 返回字段数量异常")
	}

	info := ServiceInfo{SecurityDeposit: new(big.Int)}
	if v, ok := out[0].(*big.Int); ok {
		info.SecurityDeposit.Set(v)
	}
	if v, ok := out[1].(common.Address); ok {
		info.Multisig = v.Hex()
	}
	if v, ok := out[3].(uint32); ok {
		info.Threshold = v
	}
	if v, ok := out[4].(uint32); ok {
		info.MaxNumAgentInstances = v
	}
	if v, ok := out[5].(uint32); ok {
		info.NumAgentInstances = v
	}
	if v, ok := out[6].(uint8); ok {
		info.State = ServiceState(v)
	}
	return info, nil
}

// GetOperatorBalance 查询运营方在某个服务下已缴纳的实例保证金总额。
func (c *Client) GetOperatorBalance(ctx context.Context, chainName, operator string, serviceID uint64) (*big.Int, error) {
	contract, ok := c.contracts[chainName]
	if !ok {
		return nil, fmt.Errorf("链 %s 未配置服务注册表合约", chainName)
	}
	out, err := c.call(ctx, chainName, contract, registryABI, "getOperatorBalance",
		common.HexToAddress(operator), new(big.Int).SetUint64(serviceID))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("getOperatorBalance 返回为空")
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("getOperatorBalance 返回类型异常")
	}
	return balance, nil
}

// GetAgentBond 查询某个 agent 槽位的单实例保证金。
func (c *Client) GetAgentBond(ctx context.Context, chainName string, serviceID, agentID uint64) (*big.Int, error) {
	contract, ok := c.contracts[chainName]
	if !ok {
		return nil, fmt.Errorf("链 %s 未配置服务注册表合约", chainName)
	}
	out, err := c.call(ctx, chainName, contract, registryABI, "getAgentBond",
		new(big.Int).SetUint64(serviceID), new(big.Int).SetUint64(agentID))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("getAgentBond 返回为空")
	}
	bond, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("getAgentBond 返回类型异常")
	}
	return bond, nil
}

// GetStakingParams 读取质押合约的参数。
func (c *Client) GetStakingParams(ctx context.Context, chainName, stakingContract string) (StakingParams, error) {
	params := StakingParams{
		MinStakingDeposit: new(big.Int),
		MaxNumServices:    new(big.Int),
		AvailableRewards:  new(big.Int),
	}

	out, err := c.call(ctx, chainName, stakingContract, stakingABI, "minStakingDeposit")
	if err != nil {
		return StakingParams{}, err
	}
	if v, ok := out[0].(*big.Int); ok {
		params.MinStakingDeposit.Set(v)
	}

	out, err = c.call(ctx, chainName, stakingContract, stakingABI, "stakingToken")
	if err != nil {
		return StakingParams{}, err
	}
	if v, ok := out[0].(common.Address); ok {
		params.StakingToken = v.Hex()
	}

	out, err = c.call(ctx, chainName, stakingContract, stakingABI, "maxNumServices")
	if err != nil {
		return StakingParams{}, err
	}
	if v, ok := out[0].(*big.Int); ok {
		params.MaxNumServices.Set(v)
	}

	out, err = c.call(ctx, chainName, stakingContract, stakingABI, "availableRewards")
	if err != nil {
		return StakingParams{}, err
	}
	if v, ok := out[0].(*big.Int); ok {
		params.AvailableRewards.Set(v)
	}

	out, err = c.call(ctx, chainName, stakingContract, stakingABI, "getServiceIds")
	if err != nil {
		return StakingParams{}, err
	}
	if ids, ok := out[0].([]*big.Int); ok {
		params.NumStaked = len(ids)
	}
	return params, nil
}

// GetStakingState 查询服务在指定质押合约中的状态。
func (c *Client) GetStakingState(ctx context.Context, chainName string, serviceID uint64, stakingContract string) (StakingState, error) {
	out, err := c.call(ctx, chainName, stakingContract, stakingABI, "getStakingState", new(big.Int).SetUint64(serviceID))
	if err != nil {
		return StakingUnstaked, err
	}
	if len(out) == 0 {
		return StakingUnstaked, errors.New("getStakingState 返回为空")
	}
	state, ok := out[0].(uint8)
	if !ok {
		return StakingUnstaked, errors.New("getStakingState 返回类型异常")
	}
	return StakingState(state), nil
}

// GetCurrentStakingProgram 在候选项目中查找服务当前质押的合约地址。
// 未在任何项目中质押时返回空串。
func (c *Client) GetCurrentStakingProgram(ctx context.Context, chainName string, serviceID uint64, programs []string) (string, error) {
	for _, program := range programs {
		state, err := c.GetStakingState(ctx, chainName, serviceID, program)
		if err != nil {
			return "", err
		}
		if state != StakingUnstaked {
			return program, nil
		}
	}
	return "", nil
}

// CanStake 判断服务当前是否满足质押前置条件：
// 已部署、项目有空位、有奖励可领、且未在其他项目质押。
func (c *Client) CanStake(ctx context.Context, chainName string, serviceID uint64, state ServiceState, target string, candidates []string) (bool, error) {
	if state != StateDeployed {
		return false, nil
	}
	params, err := c.GetStakingParams(ctx, chainName, target)
	if err != nil {
		return false, err
	}
	if big.NewInt(int64(params.NumStaked)).Cmp(params.MaxNumServices) >= 0 {
		return false, nil
	}
	if params.AvailableRewards.Sign() <= 0 {
		return false, nil
	}
	current, err := c.GetCurrentStakingProgram(ctx, chainName, serviceID, candidates)
	if err != nil {
		return false, err
	}
	if current != "" && !strings.EqualFold(current, target) {
		return false, nil
	}
	return true, nil
}

// ClaimRewards 从质押合约领取服务累积的奖励。
func (c *Client) ClaimRewards(ctx context.Context, chainName, stakingContract, from string, serviceID uint64) (string, error) {
	if err := loadABIs(); err != nil {
		return "", fmt.Errorf("解析质押 ABI 失败: %w", err)
	}
	client, ok := c.chains.Client(chainName)
	if !ok {
		return "", fmt.Errorf("链 %s 未在注册表中配置", chainName)
	}
	data, err := stakingABI.Pack("claim", new(big.Int).SetUint64(serviceID))
	if err != nil {
		return "", fmt.Errorf("编码 claim 调用失败: %w", err)
	}
	return client.Submit(ctx, from, stakingContract, nil, data)
}
