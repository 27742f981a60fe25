package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"AgentTreasury/internal/chain"
	"AgentTreasury/internal/ledger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const nativeTransferGas = 21000

// erc20ABIJSON 只包含本系统用到的两个方法。
const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	erc20Once sync.Once
	erc20ABI  abi.ABI
	erc20Err  error
)

func loadERC20ABI() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20ABI, erc20Err = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20Err
}

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name        string
	RPCURL      string
	BatchRPCURL string
	Notes       string
	Signer      chain.Signer
}

// Client implements the chain.Client interface for EVM compatible chains.
type Client struct {
	name        string
	notes       string
	rpcClient   *gethrpc.Client
	batchClient *gethrpc.Client
	eth         *ethclient.Client
	signer      chain.Signer

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoints and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	batchClient := rpcClient
	if batchURL := strings.TrimSpace(cfg.BatchRPCURL); batchURL != "" && batchURL != rpcURL {
		batchClient, err = gethrpc.DialContext(ctx, batchURL)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("连接批量查询节点失败: %w", err)
		}
	}

	return &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		rpcClient:   rpcClient,
		batchClient: batchClient,
		eth:         ethclient.NewClient(rpcClient),
		signer:      cfg.Signer,
	}, nil
}

// Name 返回链名称。
func (c *Client) Name() string { return c.name }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.batchClient != nil && c.batchClient != c.rpcClient {
		c.batchClient.Close()
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.rpcClient = nil
	c.batchClient = nil
}

// Balance 实时查询地址的原生币或 ERC-20 余额。
func (c *Client) Balance(ctx context.Context, address, asset string) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	owner := common.HexToAddress(address)
	if ledger.IsNative(asset) {
		balance, err := c.eth.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("查询原生币余额失败: %w", err)
		}
		return balance, nil
	}
	return c.tokenBalance(ctx, asset, owner)
}

func (c *Client) tokenBalance(ctx context.Context, token string, owner common.Address) (*big.Int, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("解析 ERC-20 ABI 失败: %w", err)
	}
	data, err := parsed.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("编码 balanceOf 调用失败: %w", err)
	}
	contract := common.HexToAddress(token)
	raw, err := c.eth.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("查询代币余额失败: %w", err)
	}
	out, err := parsed.Unpack("balanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("解码代币余额失败: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("代币余额返回类型异常")
	}
	return balance, nil
}

// Balances 通过一次 RPC batch 查询 地址 × 资产 的余额矩阵。
func (c *Client) Balances(ctx context.Context, addresses, assets []string) (map[string]map[string]*big.Int, error) {
	if c == nil || c.batchClient == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("解析 ERC-20 ABI 失败: %w", err)
	}

	type slot struct {
		address string
		asset   string
		native  *hexutil.Big
		token   hexutil.Bytes
	}

	slots := make([]*slot, 0, len(addresses)*len(assets))
	elems := make([]gethrpc.BatchElem, 0, len(addresses)*len(assets))
	for _, address := range addresses {
		for _, asset := range assets {
			s := &slot{address: address, asset: asset}
			slots = append(slots, s)
			if ledger.IsNative(asset) {
				elems = append(elems, gethrpc.BatchElem{
					Method: "eth_getBalance",
					Args:   []any{common.HexToAddress(address), "latest"},
					Result: &s.native,
				})
				continue
			}
			data, packErr := parsed.Pack("balanceOf", common.HexToAddress(address))
			if packErr != nil {
				return nil, fmt.Errorf("编码 balanceOf 调用失败: %w", packErr)
			}
			elems = append(elems, gethrpc.BatchElem{
				Method: "eth_call",
				Args: []any{map[string]any{
					"to":   common.HexToAddress(asset),
					"data": hexutil.Bytes(data),
				}, "latest"},
				Result: &s.token,
			})
		}
	}

	if err := c.batchClient.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("批量查询余额失败: %w", err)
	}

	result := make(map[string]map[string]*big.Int, len(addresses))
	for i, s := range slots {
		if elems[i].Error != nil {
			return nil, fmt.Errorf("余额查询 %s/%s 失败: %w", s.address, s.asset, elems[i].Error)
		}
		value := new(big.Int)
		if ledger.IsNative(s.asset) {
			if s.native != nil {
				value.Set((*big.Int)(s.native))
			}
		} else if len(s.token) > 0 {
			out, unpackErr := parsed.Unpack("balanceOf", s.token)
			if unpackErr != nil || len(out) == 0 {
				return nil, fmt.Errorf("解码代币余额失败: %w", unpackErr)
			}
			if v, ok := out[0].(*big.Int); ok {
				value.Set(v)
			}
		}
		if result[s.address] == nil {
			result[s.address] = make(map[string]*big.Int)
		}
		result[s.address][s.asset] = value
	}
	return result, nil
}

// Call 执行合约只读调用。
func (c *Client) Call(ctx context.Context, contract string, data []byte) ([]byte, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	to := common.HexToAddress(contract)
	raw, err := c.eth.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("合约调用失败: %w", err)
	}
	return raw, nil
}

// Transfer 构造、签名并广播一笔原生币或 ERC-20 转账。
// 签名由注入的 Signer 完成，本客户端不接触私钥。
func (c *Client) Transfer(ctx context.Context, from, to, asset string, amount *big.Int) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", errors.New("转账金额必须为正数")
	}
	if ledger.IsNative(asset) {
		return c.send(ctx, from, to, amount, nil, nativeTransferGas)
	}
	parsed, err := loadERC20ABI()
	if err != nil {
		return "", fmt.Errorf("解析 ERC-20 ABI 失败: %w", err)
	}
	data, err := parsed.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return "", fmt.Errorf("编码 transfer 调用失败: %w", err)
	}
	return c.send(ctx, from, asset, new(big.Int), data, 0)
}

// Submit 提交一笔带 calldata 的合约交易。
func (c *Client) Submit(ctx context.Context, from, contract string, value *big.Int, data []byte) (string, error) {
	if value == nil {
		value = new(big.Int)
	}
	return c.send(ctx, from, contract, value, data, 0)
}

// send 完成 nonce/gas 准备、外部签名与广播。gasLimit 为零时走估算。
func (c *Client) send(ctx context.Context, from, to string, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	if c == nil || c.eth == nil {
		return "", errors.New("未初始化的以太坊客户端")
	}
	if c.signer == nil {
		return "", errors.New("未配置交易签名器")
	}

	sender := common.HexToAddress(from)
	target := common.HexToAddress(to)
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, sender)
	if err != nil {
		return "", fmt.Errorf("查询交易计数失败: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	if gasLimit == 0 {
		gasLimit, err = c.eth.EstimateGas(ctx, gethcore.CallMsg{
			From:  sender,
			To:    &target,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return "", fmt.Errorf("估算 gas 失败: %w", err)
		}
	}

	tx := coretypes.NewTransaction(nonce, target, value, gasLimit, gasPrice, data)
	signed, err := c.signer.SignTx(ctx, c.name, from, tx, chainID)
	if err != nil {
		return "", fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("广播交易失败: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(chainID)
	c.mu.Unlock()
	return chainID, nil
}
