package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"nodelink/internal/panel"

	"github.com/gin-gonic/gin"
)

// Controller 是 Handler 用到的 panel.Hub 方法
type Controller interface {
	Clients() []string
	SendCommand(nodeID, target string, on bool) error
	RequestDataRefresh(nodeID, target string) error
	Disconnect(nodeID string) error
}

// Handler 面板 API，读请求走 Dispatcher 的缓存，写请求交给 Hub
type Handler struct {
	hub        Controller
	dispatcher *panel.Dispatcher
}

func NewHandler(hub Controller, d *panel.Dispatcher) *Handler {
	return &Handler{hub: hub, dispatcher: d}
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// hubStatus 把 Hub 返回的错误映射成 HTTP 状态码
func hubStatus(err error) int {
	switch {
	case errors.Is(err, panel.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, panel.ErrNotConnected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) connected() map[string]bool {
	ids := make(map[string]bool)
	for _, id := range h.hub.Clients() {
		ids[id] = true
	}
	return ids
}

// ListNodes GET /api/v1/nodes，包含已连接和有缓存的节点
func (h *Handler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, h.summaries(h.dispatcher.Nodes(), h.connected()))
}

// summaries 为 ids 中仍有缓存的节点生成摘要，再补上只在连接表里的节点
func (h *Handler) summaries(ids []string, connected map[string]bool) []NodeSummary {
	seen := make(map[string]bool)
	nodes := make([]NodeSummary, 0, len(ids)+len(connected))
	for _, id := range ids {
		cache, ok := h.dispatcher.Node(id)
		if !ok {
			// 列举之后节点已断开
			continue
		}
		seen[id] = true
		nodes = append(nodes, NodeSummary{
			ID:         id,
			Connected:  connected[id],
			LastUpdate: cache.LastUpdate(),
			Sensors:    len(cache.Sensors()),
			Actuators:  len(cache.Actuators()),
		})
	}
	for id := range connected {
		if !seen[id] {
			nodes = append(nodes, NodeSummary{ID: id, Connected: true})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// GetNode GET /api/v1/nodes/:id
func (h *Handler) GetNode(c *gin.Context) {
	id := c.Param("id")
	connected := h.connected()[id]
	cache, ok := h.dispatcher.Node(id)
	if !ok {
		if !connected {
			errorResponse(c, http.StatusNotFound, "节点未找到: "+id)
			return
		}
		c.JSON(http.StatusOK, NodeDetail{ID: id, Connected: true, Sensors: []SensorView{}, Actuators: []ActuatorView{}})
		return
	}

	detail := NodeDetail{
		ID:         id,
		Connected:  connected,
		LastUpdate: cache.LastUpdate(),
		Sensors:    []SensorView{},
		Actuators:  []ActuatorView{},
	}
	for key, value := range cache.Sensors() {
		updated, _ := cache.SensorUpdatedAt(key)
		detail.Sensors = append(detail.Sensors, SensorView{Key: key, Value: value, UpdatedAt: updated})
	}
	for key, on := range cache.Actuators() {
		detail.Actuators = append(detail.Actuators, ActuatorView{Key: key, On: on})
	}
	sort.Slice(detail.Sensors, func(i, j int) bool { return detail.Sensors[i].Key < detail.Sensors[j].Key })
	sort.Slice(detail.Actuators, func(i, j int) bool { return detail.Actuators[i].Key < detail.Actuators[j].Key })
	c.JSON(http.StatusOK, detail)
}

// SensorAverage GET /api/v1/nodes/:id/sensors/:key/average?window=30s，window 缺省为缓存窗口
func (h *Handler) SensorAverage(c *gin.Context) {
	id, key := c.Param("id"), c.Param("key")
	cache, ok := h.dispatcher.Node(id)
	if !ok {
		errorResponse(c, http.StatusNotFound, "节点未找到: "+id)
		return
	}
	window := cache.Window()
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errorResponse(c, http.StatusBadRequest, "无效的 window: "+raw)
			return
		}
		window = d
	}
	resp := AverageResponse{Node: id, Key: key, Window: window.String()}
	if avg := cache.SensorAverage(key, window); !math.IsNaN(avg) {
		resp.Average = &avg
	}
	c.JSON(http.StatusOK, resp)
}

// SensorHistory GET /api/v1/nodes/:id/sensors/:key/history
func (h *Handler) SensorHistory(c *gin.Context) {
	id, key := c.Param("id"), c.Param("key")
	cache, ok := h.dispatcher.Node(id)
	if !ok {
		errorResponse(c, http.StatusNotFound, "节点未找到: "+id)
		return
	}
	history := cache.History(key)
	if history == nil {
		history = []panel.Sample{}
	}
	c.JSON(http.StatusOK, history)
}

// SendCommand POST /api/v1/nodes/:id/commands
func (h *Handler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "无效的请求数据: "+err.Error())
		return
	}
	if err := h.hub.SendCommand(c.Param("id"), req.Target, req.State); err != nil {
		errorResponse(c, hubStatus(err), "发送命令失败: "+err.Error())
		return
	}
	// 命令是单向的，结果随后以 SUCCESS/FAILURE 异步到达
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// RequestRefresh POST /api/v1/nodes/:id/refresh，请求体可以为空
func (h *Handler) RequestRefresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			errorResponse(c, http.StatusBadRequest, "无效的请求数据: "+err.Error())
			return
		}
	}
	if err := h.hub.RequestDataRefresh(c.Param("id"), req.Target); err != nil {
		errorResponse(c, hubStatus(err), "请求刷新失败: "+err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// DisconnectNode DELETE /api/v1/nodes/:id
func (h *Handler) DisconnectNode(c *gin.Context) {
	if err := h.hub.Disconnect(c.Param("id")); err != nil {
		errorResponse(c, hubStatus(err), "断开节点失败: "+err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
