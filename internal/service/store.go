package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	xerrors "AgentTreasury/internal/errors"
)

// FileStore 从 JSON 清单加载服务定义，供守护进程托管。
// 清单在启动时读入内存，Reload 可在运行中刷新。
type FileStore struct {
	path string

	mu       sync.RWMutex
	services map[string]*Service
}

// NewFileStore 读取清单文件并构造服务仓库。
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{path: path, services: map[string]*Service{}}
	if err := store.Reload(); err != nil {
		return nil, err
	}
	return store, nil
}

// Reload 重新读取清单文件。
func (s *FileStore) Reload() error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("读取服务清单失败: %w", err)
	}

	var manifest struct {
		Services []*Service `json:"services"`
	}
	if err := json.Unmarshal(content, &manifest); err != nil {
		return fmt.Errorf("解析服务清单失败: %w", err)
	}

	services := make(map[string]*Service, len(manifest.Services))
	for _, svc := range manifest.Services {
		if svc == nil || svc.ID == "" {
			return fmt.Errorf("服务清单包含缺失 ID 的条目")
		}
		if _, exists := services[svc.ID]; exists {
			return fmt.Errorf("服务 ID 重复: %s", svc.ID)
		}
		services[svc.ID] = svc
	}

	s.mu.Lock()
	s.services = services
	s.mu.Unlock()
	return nil
}

// List 返回全部托管服务，按 ID 排序。
func (s *FileStore) List(_ context.Context) ([]*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

// Get 按 ID 查找服务。
func (s *FileStore) Get(_ context.Context, id string) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "服务不存在: "+id)
	}
	return svc, nil
}
