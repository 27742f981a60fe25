package funding

import (
	xerrors "AgentTreasury/internal/errors"
)

const (
	CodeInsufficientFunds  xerrors.Code = "INSUFFICIENT_FUNDS"
	CodeFundingInProgress  xerrors.Code = "FUNDING_IN_PROGRESS"
	CodeInvalidDestination xerrors.Code = "INVALID_DESTINATION"
	CodeJournalFailure     xerrors.Code = "JOURNAL_FAILURE"
	CodeRequestPublish     xerrors.Code = "REQUEST_PUBLISH_FAILED"
)

var (
	// ErrFundingInProgress 表示同一服务的并发注资尝试，可稍后重试。
	ErrFundingInProgress = xerrors.New(CodeFundingInProgress, "funding already in progress",
		xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrInvalidDestination 表示目标地址既不是服务的 agent 密钥也不是其多签。
	ErrInvalidDestination = xerrors.New(CodeInvalidDestination, "destination does not belong to service")
)

func init() {
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:   "master safe balance cannot cover requirement",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeFundingInProgress, xerrors.Attributes{
		Message:   "funding already in progress",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidDestination, xerrors.Attributes{
		Message:   "destination does not belong to service",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJournalFailure, xerrors.Attributes{
		Message:   "transfer journal write failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRequestPublish, xerrors.Attributes{
		Message:   "failed to publish funding request",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}
