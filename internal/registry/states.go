package registry

// ServiceState 表示服务在链上注册表中的生命周期状态。
type ServiceState int

const (
	StateNonExistent ServiceState = iota
	StatePreRegistration
	StateActiveRegistration
	StateFinishedRegistration
	StateDeployed
	StateTerminatedBonded
	StateUnbonded
)

var serviceStateNames = map[ServiceState]string{
	StateNonExistent:          "non_existent",
	StatePreRegistration:      "pre_registration",
	StateActiveRegistration:   "active_registration",
	StateFinishedRegistration: "finished_registration",
	StateDeployed:             "deployed",
	StateTerminatedBonded:     "terminated_bonded",
	StateUnbonded:             "unbonded",
}

// String 返回状态的可读名称。
func (s ServiceState) String() string {
	if name, ok := serviceStateNames[s]; ok {
		return name
	}
	return "invalid"
}

// serviceTransitions 列出每个状态唯一合法的来源状态。
var serviceTransitions = map[ServiceState]ServiceState{
	StatePreRegistration:      StateNonExistent,          // mint
	StateActiveRegistration:   StatePreRegistration,      // 缴纳保证金
	StateFinishedRegistration: StateActiveRegistration,   // 注册实例
	StateDeployed:             StateFinishedRegistration, // 创建多签
	StateTerminatedBonded:     StateDeployed,
	StateUnbonded:             StateTerminatedBonded,
}

// CanTransition 判断服务状态迁移是否合法。
func CanTransition(from, to ServiceState) bool {
	source, ok := serviceTransitions[to]
	return ok && source == from
}

// SecurityDepositBonded 判断保证金当前是否计入已绑定资产。
// 保证金在 [ACTIVE_REGISTRATION, TERMINATED_BONDED) 区间内视为已绑定。
func (s ServiceState) SecurityDepositBonded() bool {
	return s >= StateActiveRegistration && s < StateTerminatedBonded
}

// AgentBondsBonded 判断运营方实例保证金是否计入已绑定资产。
func (s ServiceState) AgentBondsBonded() bool {
	return s >= StateFinishedRegistration && s < StateTerminatedBonded
}

// StakingState 表示服务在质押合约中的状态。
type StakingState int

const (
	StakingUnstaked StakingState = iota
	StakingStaked
	StakingEvicted
)

// String 返回质押状态的可读名称。
func (s StakingState) String() string {
	switch s {
	case StakingUnstaked:
		return "unstaked"
	case StakingStaked:
		return "staked"
	case StakingEvicted:
		return "evicted"
	default:
		return "invalid"
	}
}

// CanStakeTransition 判断质押状态迁移是否合法。
// 强制解除质押允许从 STAKED 与 EVICTED 两个状态发起。
func CanStakeTransition(from, to StakingState) bool {
	switch {
	case from == StakingUnstaked && to == StakingStaked:
		return true
	case from == StakingStaked && to == StakingEvicted:
		return true
	case from == StakingEvicted && to == StakingUnstaked:
		return true
	case from == StakingStaked && to == StakingUnstaked:
		return true
	default:
		return false
	}
}
