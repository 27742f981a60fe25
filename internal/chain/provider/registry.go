package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"AgentTreasury/internal/chain"
	"AgentTreasury/internal/chain/ethereum"
)

// Registry manages a set of chain clients keyed by human readable names.
// 链家族由配置文件声明，而不是运行时类型探测。
type Registry struct {
	clients map[string]chain.Client
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, defs chain.Definitions, signer chain.Signer) (*Registry, error) {
	clients := make(map[string]chain.Client)
	for name, def := range defs.Chains {
		family := strings.ToLower(strings.TrimSpace(def.Type))
		if family == "" {
			family = "evm"
		}
		switch family {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:        name,
				RPCURL:      def.RPCURL,
				BatchRPCURL: def.BatchRPCURL,
				Notes:       def.Description,
				Signer:      signer,
			})
			if err != nil {
				closeAll(clients)
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			closeAll(clients)
			return nil, fmt.Errorf("链 %s 使用了不支持的家族 %s", name, def.Type)
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	return &Registry{clients: clients}, nil
}

// NewStaticRegistry 直接以给定客户端集合构造注册表，主要用于测试。
func NewStaticRegistry(clients map[string]chain.Client) *Registry {
	set := make(map[string]chain.Client, len(clients))
	for name, client := range clients {
		set[name] = client
	}
	return &Registry{clients: set}
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (chain.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	closeAll(r.clients)
	r.clients = map[string]chain.Client{}
}

func closeAll(clients map[string]chain.Client) {
	for _, client := range clients {
		if client != nil {
			client.Close()
		}
	}
}
