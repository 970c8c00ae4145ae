package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Policy 描述产物保留策略：超龄即删，超量删最旧。
type Policy struct {
	MaxAge   time.Duration
	MaxCount int
	Pattern  string
}

// Sweeper 定期清理产物目录。
type Sweeper struct {
	dir    string
	policy Policy
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewSweeper 创建产物清理器。
func NewSweeper(dir string, policy Policy, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Pattern == "" {
		policy.Pattern = "*.html"
	}
	return &Sweeper{
		dir:    dir,
		policy: policy,
		logger: logger,
		nowFn:  time.Now,
	}
}

type fileInfo struct {
	path    string
	modTime time.Time
}

// Sweep 执行一次清理，返回删除的文件数。
// 先删除超过保留期的文件，再按修改时间从旧到新裁剪到数量上限。
func (s *Sweeper) Sweep() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, s.policy.Pattern))
	if err != nil {
		return 0, fmt.Errorf("artifact: 枚举产物失败: %w", err)
	}

	files := make([]fileInfo, 0, len(matches))
	for _, path := range matches {
		stat, statErr := os.Stat(path)
		if statErr != nil || stat.IsDir() {
			continue
		}
		files = append(files, fileInfo{path: path, modTime: stat.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	removed := 0
	cutoff := s.nowFn().Add(-s.policy.MaxAge)

	kept := files[:0]
	for _, f := range files {
		if s.policy.MaxAge > 0 && f.modTime.Before(cutoff) {
			if s.remove(f.path, "expired") {
				removed++
			}
			continue
		}
		kept = append(kept, f)
	}

	if s.policy.MaxCount > 0 && len(kept) > s.policy.MaxCount {
		excess := len(kept) - s.policy.MaxCount
		for _, f := range kept[:excess] {
			if s.remove(f.path, "over_count") {
				removed++
			}
		}
	}

	return removed, nil
}

func (s *Sweeper) remove(path, reason string) bool {
	if err := os.Remove(path); err != nil {
		s.logger.Warn("删除产物文件失败",
			zap.String("path", path),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return false
	}
	s.logger.Info("已删除产物文件",
		zap.String("path", path),
		zap.String("reason", reason),
	)
	return true
}
