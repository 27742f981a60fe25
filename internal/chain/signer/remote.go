package signer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Remote 把签名委托给外部签名服务（如 Clef）。
// 私钥永远不进入本进程。
type Remote struct {
	client *gethrpc.Client
}

// NewRemote 连接外部签名服务。
func NewRemote(ctx context.Context, url string) (*Remote, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("签名服务地址不能为空")
	}
	client, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接签名服务失败: %w", err)
	}
	return &Remote{client: client}, nil
}

type signResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

// SignTx 请求外部服务对交易签名，返回已签名的交易。
func (r *Remote) SignTx(ctx context.Context, chainName, from string, tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error) {
	args := map[string]any{
		"from":     from,
		"gas":      hexutil.Uint64(tx.Gas()),
		"gasPrice": (*hexutil.Big)(tx.GasPrice()),
		"value":    (*hexutil.Big)(tx.Value()),
		"nonce":    hexutil.Uint64(tx.Nonce()),
		"chainId":  (*hexutil.Big)(chainID),
	}
	if to := tx.To(); to != nil {
		args["to"] = to.Hex()
	}
	if data := tx.Data(); len(data) > 0 {
		args["input"] = hexutil.Bytes(data)
	}

	var result signResult
	if err := r.client.CallContext(ctx, &result, "account_signTransaction", args); err != nil {
		return nil, fmt.Errorf("链 %s 签名请求失败: %w", chainName, err)
	}

	signed := new(coretypes.Transaction)
	if err := signed.UnmarshalBinary(result.Raw); err != nil {
		return nil, fmt.Errorf("解析签名结果失败: %w", err)
	}
	if sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(chainID), signed); err == nil {
		if !strings.EqualFold(sender.Hex(), common.HexToAddress(from).Hex()) {
			return nil, fmt.Errorf("签名者 %s 与请求地址 %s 不符", sender.Hex(), from)
		}
	}
	return signed, nil
}

// Close 断开与签名服务的连接。
func (r *Remote) Close() {
	if r != nil && r.client != nil {
		r.client.Close()
	}
}
