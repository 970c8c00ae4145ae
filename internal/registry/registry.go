package registry

import (
	"fmt"
	"sync"
	"time"

	"cointrade/internal/config"
)

// Registry 管理账户集合与启停状态。账户集合在启动时固定，
// 运行期仅允许切换启停。
type Registry struct {
	mu       sync.RWMutex
	order    []string
	accounts map[string]config.AccountConfig
}

// New 由配置构建账户注册表。未配置间隔的账户回填默认间隔。
func New(accounts []config.AccountConfig, defaultInterval time.Duration) (*Registry, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("registry: 账户列表为空")
	}

	r := &Registry{
		order:    make([]string, 0, len(accounts)),
		accounts: make(map[string]config.AccountConfig, len(accounts)),
	}
	for _, account := range accounts {
		if account.ID == "" {
			return nil, fmt.Errorf("registry: 账户ID不能为空")
		}
		if _, ok := r.accounts[account.ID]; ok {
			return nil, fmt.Errorf("registry: 账户ID重复: %s", account.ID)
		}
		if account.Interval <= 0 {
			account.Interval = defaultInterval
		}
		r.order = append(r.order, account.ID)
		r.accounts[account.ID] = account
	}
	return r, nil
}

// All 返回全部账户，按配置顺序。
func (r *Registry) All() []config.AccountConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]config.AccountConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}

// Active 返回全部启用账户，按配置顺序。
func (r *Registry) Active() []config.AccountConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]config.AccountConfig, 0, len(r.order))
	for _, id := range r.order {
		if account := r.accounts[id]; account.Active {
			out = append(out, account)
		}
	}
	return out
}

// Get 按ID查找账户。
func (r *Registry) Get(id string) (config.AccountConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	return account, ok
}

// IsActive 返回账户是否启用。未知账户视为未启用。
func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	return ok && account.Active
}

// SetActive 切换账户启停。
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("registry: 未知账户: %s", id)
	}
	account.Active = active
	r.accounts[id] = account
	return nil
}
