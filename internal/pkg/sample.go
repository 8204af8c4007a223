package pkg

import (
	"fmt"
	"strings"
	"time"
)

// Sample 是 panel 和 sink 之间传递的历史采样点
type Sample struct {
	NodeID string    `json:"node"`  // 远端节点 ID
	Key    string    `json:"key"`   // 规范化设备键 type#id
	Type   string    `json:"type"`  // 设备类型，即 Key 中 # 之前的部分
	Value  float64   `json:"value"` // 传感器读数
	Ts     time.Time `json:"ts"`    // 采样时间
}

// DeviceID 返回 Key 中 # 之后的部分
func (s *Sample) DeviceID() string {
	_, id, _ := strings.Cut(s.Key, "#")
	return id
}

// String 方法实现
func (s *Sample) String() string {
	return fmt.Sprintf("Sample(NodeID=%s, Key=%s, Value=%v, Ts=%s)",
		s.NodeID, s.Key, s.Value, s.Ts.Format(time.RFC3339Nano))
}
