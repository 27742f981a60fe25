package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"sort"

	"AgentTreasury/deploy/migrations"
	xerrors "AgentTreasury/internal/errors"
	"AgentTreasury/internal/funding"
)

// JournalStore 把转账流水写入 MySQL。
// 金额以十进制字符串存储，避免精度丢失。
type JournalStore struct {
	db *sql.DB
}

// NewJournalStore 连接数据库并按序执行迁移。
func NewJournalStore(ctx context.Context, cfg Config) (*JournalStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &JournalStore{db: db}, nil
}

// applyMigrations 按文件名顺序执行嵌入的 SQL 迁移。
func applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("读取迁移文件失败: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		content, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("读取迁移 %s 失败: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", name, err)
		}
	}
	return nil
}

// Record 追加一条流水。
func (s *JournalStore) Record(ctx context.Context, entry funding.Entry) error {
	amount := "0"
	if entry.Amount != nil {
		amount = entry.Amount.String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfer_journal
		 (id, service_id, chain, from_addr, to_addr, asset, amount, tx_hash, status, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ServiceID, entry.Chain, entry.From, entry.To, entry.Asset,
		amount, entry.TxHash, string(entry.Status), entry.Reason, entry.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入转账流水失败")
	}
	return nil
}

// List 返回最近的流水，按时间倒序。
func (s *JournalStore) List(ctx context.Context, limit int) ([]funding.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_id, chain, from_addr, to_addr, asset, amount, tx_hash, status, reason, created_at
		 FROM transfer_journal ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账流水失败")
	}
	defer rows.Close()

	var entries []funding.Entry
	for rows.Next() {
		var entry funding.Entry
		var amount string
		var status string
		var reason sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ServiceID, &entry.Chain, &entry.From, &entry.To,
			&entry.Asset, &amount, &entry.TxHash, &status, &reason, &entry.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描流水记录失败")
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			value = new(big.Int)
		}
		entry.Amount = value
		entry.Status = funding.EntryStatus(status)
		if reason.Valid {
			entry.Reason = reason.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流水记录失败")
	}
	return entries, nil
}

// Close 关闭数据库连接。
func (s *JournalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
