package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

// DefaultMaxFrameSize 默认帧最大长度 1 MiB
const DefaultMaxFrameSize = 1 << 20

// headerLength 长度前缀的字节数
const headerLength = 4

var (
	ErrFrameTooLarge = errors.New("帧长度超过上限")
	ErrBadLength     = errors.New("非法的帧长度前缀")
	ErrEndOfStream   = fmt.Errorf("数据流已结束: %w", io.EOF)
	ErrClosed        = fmt.Errorf("帧连接已关闭: %w", net.ErrClosed)
)

// FrameConn 在一个流式连接上收发长度前缀帧
type FrameConn struct {
	rw      io.ReadWriter
	reader  *bufio.Reader
	writer  *bufio.Writer
	maxSize int

	sendMu sync.Mutex // 保护发送路径
	recvMu sync.Mutex // 保护接收路径

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option 配置 FrameConn
type Option func(*FrameConn)

// WithMaxFrameSize 设置帧最大长度，非正数时使用默认值
func WithMaxFrameSize(size int) Option {
	return func(f *FrameConn) {
		if size > 0 {
			f.maxSize = size
		}
	}
}

// New 使用指定的连接创建 FrameConn。若 rw 实现了 io.Closer，Close 时会一并关闭。
func New(rw io.ReadWriter, opts ...Option) *FrameConn {
	f := &FrameConn{
		rw:      rw,
		reader:  bufio.NewReader(rw),
		writer:  bufio.NewWriter(rw),
		maxSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxFrameSize 返回帧最大长度
func (f *FrameConn) MaxFrameSize() int {
	return f.maxSize
}

// SendFrame 写入长度前缀和负载后立即 flush。
// 负载超过上限时在写入任何字节之前返回 ErrFrameTooLarge。
func (f *FrameConn) SendFrame(payload []byte) error {
	if len(payload) > f.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), f.maxSize)
	}
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	if f.closed.Load() {
		return ErrClosed
	}

	var header [headerLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := f.writer.Write(header[:]); err != nil {
		return fmt.Errorf("写入帧头失败: %w", err)
	}
	if _, err := f.writer.Write(payload); err != nil {
		return fmt.Errorf("写入帧负载失败: %w", err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush 帧失败: %w", err)
	}
	return nil
}

// RecvFrame 阻塞读取一帧，直到收到完整负载或数据流结束
func (f *FrameConn) RecvFrame() ([]byte, error) {
	f.recvMu.Lock()
	defer f.recvMu.Unlock()

	var header [headerLength]byte
	if _, err := io.ReadFull(f.reader, header[:]); err != nil {
		return nil, f.wrapReadErr("读取帧头失败", err)
	}
	// 长度按有符号整数解释，负数视为协议错误
	length := int32(binary.BigEndian.Uint32(header[:]))
	if length < 0 || int(length) > f.maxSize {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrBadLength, length, f.maxSize)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(f.reader, payload); err != nil {
			return nil, f.wrapReadErr("读取帧负载失败", err)
		}
	}
	return payload, nil
}

func (f *FrameConn) wrapReadErr(msg string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w", msg, ErrEndOfStream)
	}
	if f.closed.Load() && errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%s: %w", msg, ErrClosed)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// SendText 以 UTF-8 编码发送字符串
func (f *FrameConn) SendText(text string) error {
	return f.SendFrame([]byte(text))
}

// RecvText 接收一帧并按 UTF-8 解码
func (f *FrameConn) RecvText() (string, error) {
	payload, err := f.RecvFrame()
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Close 关闭连接，可重复调用
func (f *FrameConn) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		if closer, ok := f.rw.(io.Closer); ok {
			f.closeErr = closer.Close()
		}
	})
	return f.closeErr
}

// IsOpen 只反映本地是否已关闭，不代表对端存活
func (f *FrameConn) IsOpen() bool {
	return !f.closed.Load()
}

// IsDisconnect 判断错误是否为对端正常断开（EOF、连接重置、已关闭）
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
