package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendFrame_Layout(t *testing.T) {
	var buf bytes.Buffer
	fc := New(&buf)

	require.NoError(t, fc.SendFrame([]byte("abc")))
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, buf.Bytes())
}

// 超过上限的负载在发送任何字节之前失败
func TestSendFrame_TooLargeSendsNothing(t *testing.T) {
	var buf bytes.Buffer
	fc := New(&buf, WithMaxFrameSize(10))

	err := fc.SendFrame(make([]byte, 11))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, 0, buf.Len(), "不应写出任何字节")

	require.NoError(t, fc.SendFrame(make([]byte, 10)))
	assert.Equal(t, 14, buf.Len())
}

func TestRecvFrame(t *testing.T) {
	t.Run("正常读取", func(t *testing.T) {
		var buf bytes.Buffer
		writer := New(&buf)
		require.NoError(t, writer.SendText("DATA|n1|temperature#t1:22.5"))
		require.NoError(t, writer.SendText(""))

		reader := New(&buf)
		text, err := reader.RecvText()
		require.NoError(t, err)
		assert.Equal(t, "DATA|n1|temperature#t1:22.5", text)

		text, err = reader.RecvText()
		require.NoError(t, err)
		assert.Equal(t, "", text)

		_, err = reader.RecvText()
		assert.ErrorIs(t, err, ErrEndOfStream)
		assert.True(t, IsDisconnect(err))
	})

	t.Run("负数长度", func(t *testing.T) {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 0xFFFFFFFF)
		fc := New(bytes.NewBuffer(header[:]))
		_, err := fc.RecvFrame()
		assert.ErrorIs(t, err, ErrBadLength)
		assert.False(t, IsDisconnect(err))
	})

	t.Run("超过上限的长度", func(t *testing.T) {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 11)
		fc := New(bytes.NewBuffer(header[:]), WithMaxFrameSize(10))
		_, err := fc.RecvFrame()
		assert.ErrorIs(t, err, ErrBadLength)
	})

	t.Run("负载读取中途结束", func(t *testing.T) {
		data := []byte{0, 0, 0, 5, 'a', 'b'}
		fc := New(bytes.NewBuffer(data))
		_, err := fc.RecvFrame()
		assert.ErrorIs(t, err, ErrEndOfStream)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestFrameConn_OverPipe(t *testing.T) {
	client, server := net.Pipe()
	a := New(client)
	b := New(server)
	defer a.Close()
	defer b.Close()

	go func() {
		_ = a.SendText("HELLO|sensor-01")
	}()
	text, err := b.RecvText()
	require.NoError(t, err)
	assert.Equal(t, "HELLO|sensor-01", text)
}

// 并发写入互相串行，接收端收到的每一帧都完整
func TestFrameConn_ConcurrentWriters(t *testing.T) {
	client, server := net.Pipe()
	writer := New(client)
	reader := New(server)
	defer writer.Close()
	defer reader.Close()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, writer.SendText(fmt.Sprintf("writer-%d-frame-%03d", w, i)))
			}
		}(w)
	}

	seen := make(map[string]bool)
	for i := 0; i < writers*perWriter; i++ {
		text, err := reader.RecvText()
		require.NoError(t, err)
		seen[text] = true
	}
	wg.Wait()
	assert.Len(t, seen, writers*perWriter)
}

func TestClose(t *testing.T) {
	client, server := net.Pipe()
	fc := New(client)
	peer := New(server)

	assert.True(t, fc.IsOpen())
	assert.NoError(t, fc.Close())
	assert.NoError(t, fc.Close(), "Close 可重复调用")
	assert.False(t, fc.IsOpen())

	err := fc.SendText("late")
	assert.ErrorIs(t, err, ErrClosed)

	// 对端读取被解除阻塞
	_, err = peer.RecvText()
	assert.True(t, IsDisconnect(err))
}

func TestClose_UnblocksLocalReader(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	fc := New(client)

	done := make(chan error, 1)
	go func() {
		_, err := fc.RecvFrame()
		done <- err
	}()
	require.NoError(t, fc.Close())
	err := <-done
	assert.True(t, IsDisconnect(err), "got %v", err)
}

func TestIsDisconnect(t *testing.T) {
	assert.False(t, IsDisconnect(nil))
	assert.False(t, IsDisconnect(errors.New("boom")))
	assert.True(t, IsDisconnect(fmt.Errorf("wrapped: %w", io.EOF)))
	assert.True(t, IsDisconnect(net.ErrClosed))
}
