package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewTraceID 生成一个随机的、唯一的 Trace ID
// 每条订单下达时生成一个，贯穿该订单生命周期内的所有日志
func NewTraceID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// 随机数生成失败的概率极低，返回固定串兜底
		return "failed-to-generate-trace-id"
	}
	return hex.EncodeToString(bytes)
}
