package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	xerrors "AgentTreasury/internal/errors"
	"AgentTreasury/internal/funding"
	"AgentTreasury/internal/ledger"
	"AgentTreasury/internal/observability/metrics"
	"AgentTreasury/internal/service"
	"AgentTreasury/pkg/logger"
)

// Server 负责暴露 REST 接口，供运营方和 agent 驱动资金操作。
type Server struct {
	addr        string
	coordinator *funding.Coordinator
	services    service.Manager
	journal     funding.Journal
	inbox       funding.Inbox
	logger      *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, coordinator *funding.Coordinator, services service.Manager,
	journal funding.Journal, inbox funding.Inbox) *Server {
	return &Server{
		addr:        addr,
		coordinator: coordinator,
		services:    services,
		journal:     journal,
		inbox:       inbox,
		logger:      logger.Named("api"),
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Routes 返回完整的路由表，便于测试直接挂载。
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/services/{id}/funding", instrument("service_funding", s.handleFundingRequirements))
	mux.Handle("GET /api/v1/services/{id}/staking", instrument("service_staking", s.handleStakingEligibility))
	mux.Handle("POST /api/v1/services/{id}/fund", instrument("service_fund", s.handleFundService))
	mux.Handle("POST /api/v1/services/{id}/requests", instrument("service_request", s.handlePublishRequest))
	mux.Handle("POST /api/v1/wallet/refill", instrument("wallet_refill", s.handleRefill))
	mux.Handle("GET /api/v1/journal", instrument("journal_list", s.handleJournal))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// handleFundingRequirements 返回服务当前的资金需求快照。
func (s *Server) handleFundingRequirements(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	requirements, err := s.coordinator.ComputeFundingRequirements(r.Context(), svc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requirements)
}

// handleStakingEligibility 检查服务在指定链上的质押前置条件。
func (s *Server) handleStakingEligibility(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	chainName := r.URL.Query().Get("chain")
	if chainName == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "chain 参数不能为空"))
		return
	}
	eligible, err := s.coordinator.StakingEligibility(r.Context(), svc, chainName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chain":     chainName,
		"can_stake": eligible,
	})
}

type fundRequest struct {
	// Amounts 采用 链 → 地址 → 资产 → 数额 的嵌套结构，
	// 数额为十进制整数（最小单位）。
	Amounts map[string]map[string]map[string]string `json:"amounts"`
}

// handleFundService 向服务的自有地址执行一批转账。
func (s *Server) handleFundService(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	amounts, err := decodeAmounts(req.Amounts)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.coordinator.FundService(r.Context(), svc, amounts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

type publishRequestBody struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// handlePublishRequest 接收 agent 上报的注资请求并写入收件箱。
func (s *Server) handlePublishRequest(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	var body publishRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Chain == "" || body.Address == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "chain 和 address 不能为空"))
		return
	}
	req := funding.NewRequest(svc.ID, body.Chain, body.Address, body.Asset, amount)
	if err := s.inbox.Publish(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": req.ID})
}

// handleRefill 立即执行一次 Master EOA 补给检查。
func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.FundMasterEOA(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleJournal 返回最近的转账流水。
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) lookupService(w http.ResponseWriter, r *http.Request) (*service.Service, bool) {
	id := r.PathValue("id")
	svc, err := s.services.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if svc == nil {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "服务不存在"))
		return nil, false
	}
	return svc, true
}

// decodeAmounts 把字符串数额的嵌套账本转成大整数账本。
func decodeAmounts(raw map[string]map[string]map[string]string) (ledger.Amounts, error) {
	amounts := ledger.Amounts{}
	for chainName, byAddress := range raw {
		for address, byAsset := range byAddress {
			for asset, value := range byAsset {
				parsed, err := parseAmount(value)
				if err != nil {
					return nil, err
				}
				amounts.Set(chainName, address, asset, parsed)
			}
		}
	}
	return amounts, nil
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数额必须是十进制整数: "+raw)
	}
	return value, nil
}

// writeError 把统一错误码映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case funding.CodeInsufficientFunds, funding.CodeInvalidDestination, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case funding.CodeFundingInProgress, xerrors.CodeConflict:
		status = http.StatusConflict
	case xerrors.CodeNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{
		"code":    string(xerrors.CodeOf(err)),
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 记录请求耗时与状态码指标。
func instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
