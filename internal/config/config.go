package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// Config 描述金库守护进程启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Chains  ChainsConfig  `json:"chains"`
	Wallet  WalletConfig  `json:"wallet"`
	Staking StakingConfig `json:"staking"`
	Funding FundingConfig `json:"funding"`
	Journal JournalConfig `json:"journal"`
	Inbox   InboxConfig   `json:"inbox"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// LoggingConfig 控制日志级别与审计输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// ChainsConfig 指向链定义 YAML 文件。
type ChainsConfig struct {
	DefinitionsPath string `json:"definitions_path"`
}

// WalletConfig 描述 Master 钱包与各链上的 Master Safe。
type WalletConfig struct {
	LedgerType string            `json:"ledger_type"`
	Address    string            `json:"address"`
	Safes      map[string]string `json:"safes"`
	// SignerURL 指向外部签名服务（如 Clef），留空时进程只读。
	SignerURL string `json:"signer_url"`
}

// StakingConfig 描述各链的注册表合约与候选质押计划。
type StakingConfig struct {
	// RegistryContracts 是 链名 → ServiceRegistry 合约地址。
	RegistryContracts map[string]string `json:"registry_contracts"`
	// Programs 是 链名 → 候选质押合约地址列表，按优先级排列。
	Programs map[string][]string `json:"programs"`
}

// FundingConfig 控制注资协调器与后台对账任务。
type FundingConfig struct {
	// Cooldown 是一次成功注资后抑制 agent 请求的时长。
	Cooldown Duration `json:"cooldown"`
	// ReconcileInterval 是后台对账循环的周期。
	ReconcileInterval Duration `json:"reconcile_interval"`
	// MasterEOATopup 是 链名 → 补给目标数额（十进制字符串，最小单位）。
	MasterEOATopup map[string]string `json:"master_eoa_topup"`
	// ServicesPath 指向服务清单 JSON 文件。
	ServicesPath string `json:"services_path"`
}

// JournalConfig 选择转账流水的存储后端。
type JournalConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
}

// MySQLConfig 描述 MySQL 连接参数。
type MySQLConfig struct {
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// InboxConfig 选择 agent 注资请求收件箱的后端。
type InboxConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

// Duration 支持 "5m"/"30s" 形式的 JSON 时长。
type Duration time.Duration

// UnmarshalJSON 解析时长字符串或纳秒整数。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("解析时长失败: %w", err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(value))
	default:
		return fmt.Errorf("不支持的时长格式: %T", raw)
	}
	return nil
}

// Std 把 Duration 转回标准库类型。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Wallet.LedgerType == "" {
		c.Wallet.LedgerType = "ethereum"
	}

	if c.Funding.Cooldown <= 0 {
		c.Funding.Cooldown = Duration(time.Minute)
	}
	if c.Funding.ReconcileInterval <= 0 {
		c.Funding.ReconcileInterval = Duration(5 * time.Minute)
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Inbox.Driver == "" {
		c.Inbox.Driver = "memory"
	}

	if c.Chains.DefinitionsPath != "" && !filepath.IsAbs(c.Chains.DefinitionsPath) {
		c.Chains.DefinitionsPath = filepath.Join(baseDir, c.Chains.DefinitionsPath)
	}
	if c.Funding.ServicesPath != "" && !filepath.IsAbs(c.Funding.ServicesPath) {
		c.Funding.ServicesPath = filepath.Join(baseDir, c.Funding.ServicesPath)
	}
}

// MasterEOATopups 把配置的补给目标解析为大整数。
func (c *Config) MasterEOATopups() (map[string]*big.Int, error) {
	topups := make(map[string]*big.Int, len(c.Funding.MasterEOATopup))
	for chainName, raw := range c.Funding.MasterEOATopup {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("链 %s 的补给目标不是十进制整数: %s", chainName, raw)
		}
		topups[chainName] = value
	}
	return topups, nil
}
