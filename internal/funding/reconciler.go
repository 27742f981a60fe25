package funding

import (
	"context"
	"log/slog"
	"time"

	xerrors "AgentTreasury/internal/errors"
	"AgentTreasury/internal/observability/alerting"
	"AgentTreasury/internal/observability/metrics"
	"AgentTreasury/internal/registry"
	"AgentTreasury/internal/service"
	"AgentTreasury/pkg/logger"
)

// Reconciler 是长驻的后台对账任务：周期性领取质押奖励并补给
// Master EOA。两个阶段各自捕获并记录错误，任一阶段失败都不会
// 阻塞另一个阶段，也不会终止循环本身。
type Reconciler struct {
	coordinator *Coordinator
	services    service.Manager
	wallets     WalletManager
	registry    RegistryClient
	interval    time.Duration
	alerter     alerting.Dispatcher
	logger      *slog.Logger
}

// ReconcilerOption 定义可选配置。
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger 指定日志输出。
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ReconcilerOption {
	return func(r *Reconciler) {
		r.alerter = dispatcher
	}
}

// NewReconciler 构造后台对账任务。
func NewReconciler(coordinator *Coordinator, services service.Manager, wallets WalletManager,
	reg RegistryClient, interval time.Duration, opts ...ReconcilerOption) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	r := &Reconciler{
		coordinator: coordinator,
		services:    services,
		wallets:     wallets,
		registry:    reg,
		interval:    interval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("reconciler")
	}
	return r
}

// Run 启动对账循环，直到上下文取消。
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("后台对账任务已启动", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("后台对账任务已停止")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce 执行一轮对账，每个阶段独立容错。
func (r *Reconciler) runOnce(ctx context.Context) {
	success := true
	if err := r.claimRewards(ctx); err != nil {
		success = false
		r.logger.Error("领取质押奖励阶段失败", slog.Any("error", err))
	}
	if err := r.coordinator.FundMasterEOA(ctx); err != nil {
		success = false
		r.logger.Error("补给 Master EOA 阶段失败", slog.Any("error", err))
		r.emitAlert(ctx, "", "", xerrors.CodeOf(err), err)
	}
	metrics.ObserveReconcileRun(success)
}

// claimRewards 为所有已质押的服务领取奖励。
// 单个服务失败只记录日志，不影响其余服务。
func (r *Reconciler) claimRewards(ctx context.Context) error {
	services, err := r.services.List(ctx)
	if err != nil {
		return err
	}
	w, err := r.wallets.Load(r.coordinator.cfg.LedgerType)
	if err != nil {
		return err
	}

	for _, svc := range services {
		for chainName, chainCfg := range svc.Chains {
			if !chainCfg.Params.UseStaking || chainCfg.ServiceID == 0 {
				continue
			}
			state, err := r.registry.GetStakingState(ctx, chainName, chainCfg.ServiceID, chainCfg.Params.StakingProgramID)
			if err != nil {
				r.logger.Warn("读取质押状态失败",
					slog.Any("error", err),
					slog.String("service_id", svc.ID),
					slog.String("chain", chainName))
				continue
			}
			if state != registry.StakingStaked {
				continue
			}
			hash, err := r.registry.ClaimRewards(ctx, chainName, chainCfg.Params.StakingProgramID, w.Address, chainCfg.ServiceID)
			if err != nil {
				r.logger.Warn("领取质押奖励失败",
					slog.Any("error", err),
					slog.String("service_id", svc.ID),
					slog.String("chain", chainName))
				r.emitAlert(ctx, svc.ID, chainName, xerrors.CodeChainFailure, err)
				continue
			}
			logger.Audit().Info("质押奖励已领取",
				slog.String("service_id", svc.ID),
				slog.String("chain", chainName),
				slog.String("tx_hash", hash))
		}
	}
	return nil
}

func (r *Reconciler) emitAlert(ctx context.Context, serviceID, chainName string, code xerrors.Code, cause error) {
	if r.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		ServiceID:  serviceID,
		Chain:      chainName,
		OccurredAt: time.Now(),
	}
	if err := r.alerter.Notify(ctx, event); err != nil {
		r.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("service_id", serviceID))
	}
}
