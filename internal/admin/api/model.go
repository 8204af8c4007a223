package api

import "time"

// NodeSummary 节点列表项
type NodeSummary struct {
	ID         string    `json:"id"`
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update"`
	Sensors    int       `json:"sensors"`
	Actuators  int       `json:"actuators"`
}

type SensorView struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ActuatorView struct {
	Key string `json:"key"`
	On  bool   `json:"on"`
}

// NodeDetail 单个节点的缓存内容，传感器和执行器按键排序
type NodeDetail struct {
	ID         string         `json:"id"`
	Connected  bool           `json:"connected"`
	LastUpdate time.Time      `json:"last_update"`
	Sensors    []SensorView   `json:"sensors"`
	Actuators  []ActuatorView `json:"actuators"`
}

// AverageResponse 窗口均值，窗口内没有样本时 Average 为 null
type AverageResponse struct {
	Node    string   `json:"node"`
	Key     string   `json:"key"`
	Window  string   `json:"window"`
	Average *float64 `json:"average"`
}

type CommandRequest struct {
	Target string `json:"target" binding:"required"`
	State  bool   `json:"state"`
}

type RefreshRequest struct {
	Target string `json:"target"`
}
