package panel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"nodelink/internal/pkg"

	"go.uber.org/zap"
)

var (
	ErrUnknownNode = errors.New("未知的节点")
	ErrNodeExists  = errors.New("节点已连接")
)

// Hub 管理面板连接的全部远端节点
type Hub struct {
	ctx        context.Context
	dispatcher *Dispatcher
	opts       []ClientOption

	mu      sync.Mutex
	clients map[string]*RemoteClient
}

func NewHub(ctx context.Context, d *Dispatcher, opts ...ClientOption) *Hub {
	return &Hub{
		ctx:        pkg.WithLoggerAndModule(ctx, pkg.LoggerFromContext(ctx), "hub"),
		dispatcher: d,
		opts:       opts,
		clients:    make(map[string]*RemoteClient),
	}
}

func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Connect 连接一个节点，断开后自动从 Hub 中移除
func (h *Hub) Connect(ctx context.Context, cfg pkg.RemoteNodeConfig) (*RemoteClient, error) {
	c, err := NewRemoteClient(h.ctx, cfg, h.dispatcher, h.opts...)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	if _, ok := h.clients[c.NodeID()]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, c.NodeID())
	}
	h.clients[c.NodeID()] = c
	h.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		h.remove(c)
		return nil, err
	}
	go func() {
		<-c.Done()
		h.remove(c)
	}()
	return c, nil
}

// ConnectAll 连接配置中的全部节点，单个节点失败不影响其他节点
func (h *Hub) ConnectAll(ctx context.Context, nodes []pkg.RemoteNodeConfig) error {
	var errs []error
	for _, cfg := range nodes {
		if _, err := h.Connect(ctx, cfg); err != nil {
			pkg.LoggerFromContext(h.ctx).Error("连接节点失败", zap.String("node", cfg.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) remove(c *RemoteClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.NodeID()] == c {
		delete(h.clients, c.NodeID())
	}
}

func (h *Hub) Client(nodeID string) (*RemoteClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[nodeID]
	return c, ok
}

// Clients 返回已连接节点的 ID（有序）
func (h *Hub) Clients() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendCommand 向指定节点发送执行器命令
func (h *Hub) SendCommand(nodeID, target string, on bool) error {
	c, ok := h.Client(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	return c.SendCommand(target, on)
}

// RequestDataRefresh 向指定节点请求全量快照
func (h *Hub) RequestDataRefresh(nodeID, target string) error {
	c, ok := h.Client(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	return c.RequestDataRefresh(target)
}

// Disconnect 断开指定节点
func (h *Hub) Disconnect(nodeID string) error {
	c, ok := h.Client(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	err := c.Close()
	h.remove(c)
	return err
}

// Close 断开全部节点
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*RemoteClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*RemoteClient)
	h.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
