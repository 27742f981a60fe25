package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// NativeAsset 是原生币的哨兵资产键，沿用 EVM 的零地址约定。
const NativeAsset = "0x0000000000000000000000000000000000000000"

// MasterSafePlaceholder 在 Master Safe 尚未部署时充当其地址的占位键。
const MasterSafePlaceholder = "master_safe"

// IsNative 判断资产键是否为原生币。
func IsNative(asset string) bool {
	return strings.EqualFold(asset, NativeAsset)
}

// AssetAmounts 表示单个地址下 资产 → 数量 的映射。
type AssetAmounts map[string]*big.Int

// AddressAmounts 表示单条链下 地址 → 资产数量 的映射。
type AddressAmounts map[string]AssetAmounts

// Amounts 是三层嵌套账本：链 → 地址 → 资产 → 数量。
// 所有运算把缺失的键当作零处理，输出永远非负。
type Amounts map[string]AddressAmounts

// Get 返回指定叶子的数量，缺失键返回零。返回值是副本，可安全修改。
func (a Amounts) Get(chain, address, asset string) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	addrs, ok := a[chain]
	if !ok {
		return new(big.Int)
	}
	assets, ok := addrs[address]
	if !ok {
		return new(big.Int)
	}
	value, ok := assets[asset]
	if !ok || value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(value)
}

// Set 写入指定叶子，按需创建中间层。数量会被拷贝。
func (a Amounts) Set(chain, address, asset string, value *big.Int) {
	addrs, ok := a[chain]
	if !ok {
		addrs = make(AddressAmounts)
		a[chain] = addrs
	}
	assets, ok := addrs[address]
	if !ok {
		assets = make(AssetAmounts)
		addrs[address] = assets
	}
	if value == nil {
		value = new(big.Int)
	}
	assets[asset] = new(big.Int).Set(value)
}

// Accumulate 把数量累加到指定叶子上。
func (a Amounts) Accumulate(chain, address, asset string, value *big.Int) {
	if value == nil {
		value = new(big.Int)
	}
	current := a.Get(chain, address, asset)
	a.Set(chain, address, asset, current.Add(current, value))
}

// Clone 返回账本的深拷贝。
func (a Amounts) Clone() Amounts {
	out := make(Amounts, len(a))
	a.Walk(func(chain, address, asset string, value *big.Int) {
		out.Set(chain, address, asset, value)
	})
	return out
}

// Walk 按键排序遍历每个叶子，保证确定性顺序。
func (a Amounts) Walk(fn func(chain, address, asset string, value *big.Int)) {
	chains := sortedKeys(a)
	for _, chain := range chains {
		addrs := a[chain]
		for _, address := range sortedKeys(addrs) {
			assets := addrs[address]
			for _, asset := range sortedKeys(assets) {
				value := assets[asset]
				if value == nil {
					value = new(big.Int)
				}
				fn(chain, address, asset, new(big.Int).Set(value))
			}
		}
	}
}

// Sum 对任意数量的账本做逐叶子求和，任一侧缺失的叶子按零处理。
func Sum(ledgers ...Amounts) Amounts {
	out := make(Amounts)
	for _, l := range ledgers {
		l.Walk(func(chain, address, asset string, value *big.Int) {
			out.Accumulate(chain, address, asset, value)
		})
	}
	return out
}

// DivInt 对每个叶子做整数除法，用于半阈值这类派生值。
func (a Amounts) DivInt(divisor int64) Amounts {
	if divisor == 0 {
		panic("ledger: division by zero")
	}
	d := big.NewInt(divisor)
	out := make(Amounts)
	a.Walk(func(chain, address, asset string, value *big.Int) {
		out.Set(chain, address, asset, value.Div(value, d))
	})
	return out
}

// LTE 判断左账本的每个叶子是否都不超过右账本对应叶子，缺失键按零比较。
func LTE(left, right Amounts) bool {
	ok := true
	left.Walk(func(chain, address, asset string, value *big.Int) {
		if value.Cmp(right.Get(chain, address, asset)) > 0 {
			ok = false
		}
	})
	return ok
}

// SubClamped 逐叶子计算 max(a-b, 0)，输出键集取自左账本。
func SubClamped(a, b Amounts) Amounts {
	out := make(Amounts)
	a.Walk(func(chain, address, asset string, value *big.Int) {
		diff := value.Sub(value, b.Get(chain, address, asset))
		if diff.Sign() < 0 {
			diff.SetInt64(0)
		}
		out.Set(chain, address, asset, diff)
	})
	return out
}

// AggregateByAsset 把每条链上的叶子按资产聚合，忽略地址维度。
// 用于 Master Safe 余额与需求的充足性预检。
func (a Amounts) AggregateByAsset() map[string]AssetAmounts {
	out := make(map[string]AssetAmounts)
	a.Walk(func(chain, _ string, asset string, value *big.Int) {
		assets, ok := out[chain]
		if !ok {
			assets = make(AssetAmounts)
			out[chain] = assets
		}
		current, ok := assets[asset]
		if !ok {
			current = new(big.Int)
			assets[asset] = current
		}
		current.Add(current, value)
	})
	return out
}

// Equal 判断两个账本在零填充语义下是否等值。
func Equal(a, b Amounts) bool {
	return LTE(a, b) && LTE(b, a)
}

// IsZero 判断账本的所有叶子是否都为零。
func (a Amounts) IsZero() bool {
	zero := true
	a.Walk(func(_, _, _ string, value *big.Int) {
		if value.Sign() > 0 {
			zero = false
		}
	})
	return zero
}

// String 输出稳定排序的可读形式，便于日志与调试。
func (a Amounts) String() string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	a.Walk(func(chain, address, asset string, value *big.Int) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s/%s/%s=%s", chain, address, asset, value.String())
	})
	b.WriteString("}")
	return b.String()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
