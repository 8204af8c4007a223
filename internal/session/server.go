package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"nodelink/internal/node"
	"nodelink/internal/pkg"
	"nodelink/internal/transport"

	"go.uber.org/zap"
)

// Server 接受 TCP 连接，每个连接对应一个 Session
type Server struct {
	ctx      context.Context
	node     *node.SensorNode
	listener net.Listener
	opts     []Option
	maxFrame int

	sessions sync.Map // remote -> *Session
	wg       sync.WaitGroup
	mu       sync.Mutex // 保证 Close 之后不再登记新会话
	closed   bool
}

// Listen 在 addr 上监听
func Listen(ctx context.Context, n *node.SensorNode, addr string, maxFrame int, opts ...Option) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("节点监听 %s 失败: %w", addr, err)
	}
	return NewServer(ctx, n, l, maxFrame, opts...), nil
}

// NewServer 使用已有的 listener 创建服务端
func NewServer(ctx context.Context, n *node.SensorNode, l net.Listener, maxFrame int, opts ...Option) *Server {
	return &Server{
		ctx:      pkg.WithLoggerAndModule(ctx, pkg.LoggerFromContext(ctx), "server"),
		node:     n,
		listener: l,
		opts:     opts,
		maxFrame: maxFrame,
	}
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve 阻塞接受连接，直到监听器被 Close
func (s *Server) Serve() error {
	log := pkg.LoggerFromContext(s.ctx)
	log.Info("节点服务已启动", zap.String("addr", s.Addr().String()), zap.String("node", s.node.ID()))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("监听器已关闭，停止接受连接")
				return nil
			}
			log.Error("接受连接失败", zap.Error(err))
			continue
		}
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	fc := transport.New(conn, transport.WithMaxFrameSize(s.maxFrame))
	opts := append(append([]Option{}, s.opts...),
		WithRemote(remote),
		WithOnClose(func(sess *Session) {
			s.sessions.CompareAndDelete(remote, sess)
			s.wg.Done()
		}),
	)
	sess := New(s.ctx, s.node, fc, opts...)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = fc.Close()
		return
	}
	s.wg.Add(1)
	s.sessions.Store(remote, sess)
	s.mu.Unlock()
	pkg.LoggerFromContext(s.ctx).Info("建立连接", zap.String("remote", remote))
	sess.Start()
}

// Sessions 返回当前活跃会话数
func (s *Server) Sessions() int {
	count := 0
	s.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Close 关闭监听器并结束所有会话
func (s *Server) Close() error {
	log := pkg.LoggerFromContext(s.ctx)
	log.Info("关闭监听器并停止所有会话")
	err := s.listener.Close()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.sessions.Range(func(_, value any) bool {
		value.(*Session).Stop()
		return true
	})
	s.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("关闭监听器失败: %w", err)
	}
	return nil
}
