package panel

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock 可手动推进的时间源
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNodeDataLatestValues(t *testing.T) {
	clock := newFakeClock()
	n := NewNodeData("node-1", WithNow(clock.Now))

	ts := n.UpdateSensor("Temperature#T1", 22.5)
	assert.Equal(t, clock.Now(), ts)
	v, ok := n.SensorValue("temperature#t1")
	assert.True(t, ok)
	assert.Equal(t, 22.5, v)

	n.UpdateActuator("fan#f1", true)
	on, ok := n.ActuatorState("FAN#F1")
	assert.True(t, ok)
	assert.True(t, on)

	assert.Equal(t, map[string]float64{"temperature#t1": 22.5}, n.Sensors())
	assert.Equal(t, map[string]bool{"fan#f1": true}, n.Actuators())
	assert.Equal(t, clock.Now(), n.LastUpdate())

	// 无效键被忽略
	assert.True(t, n.UpdateSensor("#x", 1).IsZero())
	_, ok = n.SensorValue("#x")
	assert.False(t, ok)
}

func TestNodeDataTouch(t *testing.T) {
	clock := newFakeClock()
	n := NewNodeData("node-1", WithNow(clock.Now))
	assert.True(t, n.LastUpdate().IsZero())
	clock.Advance(time.Second)
	n.Touch()
	assert.Equal(t, clock.Now(), n.LastUpdate())
	assert.Empty(t, n.Sensors())
}

func TestSensorAverageWindow(t *testing.T) {
	clock := newFakeClock()
	n := NewNodeData("node-1", WithNow(clock.Now), WithWindow(time.Minute))

	assert.True(t, math.IsNaN(n.SensorAverage("temperature#t1", time.Minute)))

	n.UpdateSensor("temperature#t1", 10)
	clock.Advance(20 * time.Second)
	n.UpdateSensor("temperature#t1", 20)
	clock.Advance(20 * time.Second)
	n.UpdateSensor("temperature#t1", 30)

	assert.Equal(t, 20.0, n.SensorAverage("temperature#t1", time.Minute))
	// 只包含最近 20 秒：20 和 30
	assert.Equal(t, 25.0, n.SensorAverage("temperature#t1", 20*time.Second))
	assert.Equal(t, 30.0, n.SensorAverage("temperature#t1", 0))

	clock.Advance(10 * time.Minute)
	assert.True(t, math.IsNaN(n.SensorAverage("temperature#t1", time.Minute)))
}

func TestHistoryPrunedOnWrite(t *testing.T) {
	clock := newFakeClock()
	n := NewNodeData("node-1", WithNow(clock.Now), WithWindow(time.Minute))

	for i := 0; i < 5; i++ {
		n.UpdateSensor("humidity#h1", float64(i))
		clock.Advance(30 * time.Second)
	}
	// 写入时刻之前一分钟以内的样本才会保留
	h := n.History("humidity#h1")
	assert.Len(t, h, 3)
	assert.Equal(t, 2.0, h[0].Value)

	n.UpdateSensor("humidity#h1", 9)
	h = n.History("humidity#h1")
	assert.Len(t, h, 3)
	assert.Equal(t, 3.0, h[0].Value)
}

func TestHistoryHardLimit(t *testing.T) {
	n := NewNodeData("node-1", WithMaxSamples(3))
	for i := 0; i < 10; i++ {
		n.UpdateSensor("co2#c1", float64(i))
	}
	h := n.History("co2#c1")
	assert.Len(t, h, 3)
	assert.Equal(t, 7.0, h[0].Value)
}

func TestNodeDataRemove(t *testing.T) {
	n := NewNodeData("node-1")
	n.UpdateSensor("temperature#t1", 1.5)
	n.UpdateActuator("fan#f1", true)

	n.RemoveSensor("temperature#t1")
	n.RemoveActuator("fan#f1")
	_, ok := n.SensorValue("temperature#t1")
	assert.False(t, ok)
	assert.Nil(t, n.History("temperature#t1"))
	_, ok = n.ActuatorState("fan#f1")
	assert.False(t, ok)
	assert.True(t, math.IsNaN(n.SensorAverage("temperature#t1", time.Hour)))
}

func TestNodeDataConcurrent(t *testing.T) {
	n := NewNodeData("node-1")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.UpdateSensor("light#l1", v)
			}
		}(float64(i))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = n.SensorAverage("light#l1", time.Minute)
				_ = n.Sensors()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, n.History("light#l1"), 800)
}
