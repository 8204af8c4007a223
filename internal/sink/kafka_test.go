package sink

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"nodelink/internal/pkg"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	closed  bool
}

func (f *fakeMessageWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMessageWriter) snapshot() [][]kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]kafka.Message(nil), f.batches...)
}

func TestKafkaSinkBatches(t *testing.T) {
	w := &fakeMessageWriter{}
	ks := newKafkaSink(context.Background(), w, KafkaSinkConfig{Topic: "readings", BatchSize: 2})
	// 拉长等待，只让批满触发发送
	ks.batchWait = time.Hour

	ch := make(chan pkg.Sample, 3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ks.Start(ch)
	}()

	for i, key := range []string{"temperature#t1", "humidity#h1", "light#l1"} {
		ch <- pkg.Sample{NodeID: "node-1", Key: key, Type: "x", Value: float64(i)}
	}
	require.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	batch := w.snapshot()[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "node-1/temperature#t1", string(batch[0].Key))
	var s pkg.Sample
	require.NoError(t, json.Unmarshal(batch[1].Value, &s))
	assert.Equal(t, "humidity#h1", s.Key)

	// Stop 时残留的一条也要写出
	require.Eventually(t, func() bool { return len(ch) == 0 }, 2*time.Second, 10*time.Millisecond)
	ks.Stop()
	<-done
	batches := w.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, "node-1/light#l1", string(batches[1][0].Key))
	assert.True(t, w.closed)
}

func TestKafkaSinkTickerFlush(t *testing.T) {
	w := &fakeMessageWriter{}
	ks := newKafkaSink(context.Background(), w, KafkaSinkConfig{Topic: "readings", BatchSize: 100})
	ks.batchWait = 20 * time.Millisecond

	ch := make(chan pkg.Sample, 1)
	go ks.Start(ch)
	defer ks.Stop()

	ch <- pkg.Sample{NodeID: "n", Key: "co2#c1", Type: "co2", Value: 800}
	assert.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(context.Background(), pkg.SinkConfig{Type: "kafka", Para: map[string]interface{}{"topic": "t"}})
	assert.Error(t, err)
	_, err = NewKafkaSink(context.Background(), pkg.SinkConfig{Type: "kafka", Para: map[string]interface{}{"brokers": []string{"localhost:9092"}}})
	assert.Error(t, err)

	tpl, err := NewKafkaSink(context.Background(), pkg.SinkConfig{Type: "kafka", Para: map[string]interface{}{
		"brokers": []string{"localhost:9092"}, "topic": "t", "batchSize": "10",
	}})
	require.NoError(t, err)
	assert.Equal(t, 10, tpl.(*KafkaSink).config.BatchSize)
	tpl.Stop()
}
