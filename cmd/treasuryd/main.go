package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentTreasury/internal/api"
	"AgentTreasury/internal/chain"
	"AgentTreasury/internal/chain/provider"
	"AgentTreasury/internal/chain/signer"
	"AgentTreasury/internal/config"
	"AgentTreasury/internal/funding"
	"AgentTreasury/internal/observability/metrics"
	"AgentTreasury/internal/registry"
	"AgentTreasury/internal/service"
	"AgentTreasury/internal/storage/mysql"
	"AgentTreasury/internal/wallet"
	"AgentTreasury/pkg/logger"
)

// main 是金库守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("treasuryd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("TREASURY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "treasury.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	// 链客户端：家族由配置声明，签名委托给外部服务。
	defs, err := chain.LoadDefinitions(cfg.Chains.DefinitionsPath)
	if err != nil {
		return err
	}
	var txSigner chain.Signer
	if cfg.Wallet.SignerURL != "" {
		remote, err := signer.NewRemote(ctx, cfg.Wallet.SignerURL)
		if err != nil {
			return err
		}
		defer remote.Close()
		txSigner = remote
	} else {
		logger.L().Warn("未配置签名服务，进程运行在只读模式")
	}
	chainRegistry, err := provider.NewRegistry(ctx, defs, txSigner)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	// Master 钱包与各链 Safe。
	ledgerType := wallet.LedgerType(cfg.Wallet.LedgerType)
	wallets := wallet.NewManager(chainRegistry, map[wallet.LedgerType]*wallet.Wallet{
		ledgerType: {
			Address: cfg.Wallet.Address,
			Safes:   cfg.Wallet.Safes,
		},
	})

	regClient := registry.NewClient(chainRegistry, cfg.Staking.RegistryContracts)

	services, err := service.NewFileStore(cfg.Funding.ServicesPath)
	if err != nil {
		return err
	}
	if err := resolveStakingPrograms(ctx, services, regClient, cfg.Staking.Programs); err != nil {
		logger.L().Warn("解析质押计划失败", slog.Any("error", err))
	}

	journal, err := buildJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	inbox, err := buildInbox(cfg)
	if err != nil {
		return err
	}
	defer inbox.Close()

	// RabbitMQ 收件箱需要后台消费循环。
	if consumer, ok := inbox.(*funding.RabbitMQInbox); ok {
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("注资请求消费循环退出", slog.Any("error", err))
			}
		}()
	}

	topups, err := cfg.MasterEOATopups()
	if err != nil {
		return err
	}

	tracker := funding.NewTracker(cfg.Funding.Cooldown.Std())
	coordinator := funding.NewCoordinator(
		provider.NewOracle(chainRegistry),
		wallets,
		regClient,
		inbox,
		journal,
		tracker,
		funding.Config{
			LedgerType:      ledgerType,
			MasterEOATopup:  topups,
			StakingPrograms: cfg.Staking.Programs,
		},
	)

	reconciler := funding.NewReconciler(coordinator, services, wallets, regClient,
		cfg.Funding.ReconcileInterval.Std())
	go func() {
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("后台对账任务异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, coordinator, services, journal, inbox)
	return server.Start(ctx)
}

// buildJournal 按配置选择流水存储后端。
func buildJournal(ctx context.Context, cfg *config.Config) (funding.Journal, error) {
	switch cfg.Journal.Driver {
	case "", "memory":
		return funding.NewMemoryJournal(), nil
	case "mysql":
		return mysql.NewJournalStore(ctx, mysql.Config{
			DSN:             cfg.Journal.MySQL.DSN,
			MaxOpenConns:    cfg.Journal.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Journal.MySQL.MaxIdleConns,
			ConnMaxLifetime: 30 * time.Minute,
		})
	default:
		return nil, fmt.Errorf("未知的流水存储驱动: %s", cfg.Journal.Driver)
	}
}

// buildInbox 按配置选择注资请求收件箱后端。
func buildInbox(cfg *config.Config) (funding.Inbox, error) {
	switch cfg.Inbox.Driver {
	case "", "memory":
		return funding.NewMemoryInbox(), nil
	case "redis":
		return funding.NewRedisInbox(funding.RedisInboxConfig{
			Address:   cfg.Inbox.Redis.Address,
			Password:  cfg.Inbox.Redis.Password,
			DB:        cfg.Inbox.Redis.DB,
			KeyPrefix: cfg.Inbox.Redis.KeyPrefix,
		})
	case "rabbitmq":
		return funding.NewRabbitMQInbox(funding.RabbitMQInboxConfig{
			URL:     cfg.Inbox.RabbitMQ.URL,
			Queue:   cfg.Inbox.RabbitMQ.Queue,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的收件箱驱动: %s", cfg.Inbox.Driver)
	}
}

// resolveStakingPrograms 为启用质押但未固定计划的服务解析当前质押合约。
func resolveStakingPrograms(ctx context.Context, services *service.FileStore,
	regClient *registry.Client, candidates map[string][]string) error {
	list, err := services.List(ctx)
	if err != nil {
		return err
	}
	for _, svc := range list {
		for chainName, chainCfg := range svc.Chains {
			if !chainCfg.Params.UseStaking || chainCfg.Params.StakingProgramID != "" || chainCfg.ServiceID == 0 {
				continue
			}
			program, err := regClient.GetCurrentStakingProgram(ctx, chainName, chainCfg.ServiceID, candidates[chainName])
			if err != nil {
				return fmt.Errorf("服务 %s 在链 %s 上解析质押计划失败: %w", svc.ID, chainName, err)
			}
			if program != "" {
				chainCfg.Params.StakingProgramID = program
				svc.Chains[chainName] = chainCfg
			}
		}
	}
	return nil
}
