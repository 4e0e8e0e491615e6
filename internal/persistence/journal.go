package persistence

import (
	"fmt"
	"os"
	"sync"
)

// Journal 是按时间顺序追加的仿真事件日志
// 每行以 HH:MM 形式的仿真时间开头，写入后立即刷盘
type Journal struct {
	file *os.File
	mu   sync.Mutex // 保证多线程写入不交错
}

// OpenJournal 创建（或截断）一个仿真日志文件
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开仿真日志失败: %w", err)
	}
	if _, err := file.WriteString("=== Simulation Log ===\n\n"); err != nil {
		file.Close()
		return nil, fmt.Errorf("写入日志头失败: %w", err)
	}
	return &Journal{file: file}, nil
}

// Append 追加一条带仿真时间戳的事件记录
func (j *Journal) Append(simMinutes int, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := fmt.Fprintf(j.file, "%s %s\n", FormatTime(simMinutes), message); err != nil {
		return err
	}
	// 立即刷盘，保证仿真中断时日志完整
	return j.file.Sync()
}

// Close 关闭日志文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// FormatTime 把仿真分钟格式化为 HH:MM
func FormatTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
