package node

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"nodelink/internal/device"
	"nodelink/internal/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu        sync.Mutex
	sensors   []string
	actuators []string
}

func (l *recordingListener) OnSensorUpdated(_ *SensorNode, s device.Sensor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sensors = append(l.sensors, s.Key().String())
}

func (l *recordingListener) OnActuatorUpdated(_ *SensorNode, a device.Actuator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actuators = append(l.actuators, a.Key().String())
}

func newTestNode(t *testing.T) (*SensorNode, *device.BasicSensor, *device.BasicSensor, *device.BasicActuator) {
	t.Helper()
	n, err := New("node-1", WithClock(func() time.Time { return time.Unix(100, 0) }))
	require.NoError(t, err)

	temp, err := device.NewBasicSensor("temperature", "t1", 0, 50, device.WithInitial(20))
	require.NoError(t, err)
	hum, err := device.NewBasicSensor("humidity", "h1", 0, 100, device.WithInitial(40))
	require.NoError(t, err)
	heater, err := device.NewBasicActuator("heater", "heater-01", nil)
	require.NoError(t, err)

	require.NoError(t, n.AddSensor(temp))
	require.NoError(t, n.AddSensor(hum))
	require.NoError(t, n.AddActuator(heater))
	return n, temp, hum, heater
}

func TestNewNode(t *testing.T) {
	_, err := New("  ")
	assert.ErrorIs(t, err, ErrBlankNodeID)

	n, err := New(" n1 ")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID())
	assert.Equal(t, pkg.DefaultReportInterval, n.ReportInterval())
}

func TestDrainPendingSensorUpdates(t *testing.T) {
	n, temp, hum, _ := newTestNode(t)
	assert.Equal(t, "", n.DrainPendingSensorUpdates())

	temp.SetValue(22.5)
	temp.SetValue(23)
	hum.SetValue(55)

	assert.Equal(t, "temperature#t1:23.0,humidity#h1:55.0", n.DrainPendingSensorUpdates())
	assert.Equal(t, "", n.DrainPendingSensorUpdates())

	hum.SetValue(60)
	assert.Equal(t, "humidity#h1:60.0", n.DrainPendingSensorUpdates())
}

func TestSnapshots(t *testing.T) {
	n, _, _, heater := newTestNode(t)
	assert.Equal(t, "temperature#t1:20.0,humidity#h1:40.0", n.SensorSnapshot())
	assert.Equal(t, "heater#heater-01:0", n.ActuatorSnapshot())

	heater.SetState(true)
	assert.Equal(t, "heater#heater-01:1", n.ActuatorSnapshot())
}

func TestSensorSnapshotAppliesActiveEffects(t *testing.T) {
	n, err := New("node-1")
	require.NoError(t, err)
	temp, _ := device.NewBasicSensor("temperature", "t1", 0, 50, device.WithInitial(20))
	effect, err := device.CompileEffect(`Sensor.Type == "temperature" ? 2 : 0`)
	require.NoError(t, err)
	heater, _ := device.NewBasicActuator("heater", "h1", effect)
	require.NoError(t, n.AddSensor(temp))
	require.NoError(t, n.AddActuator(heater))

	assert.Equal(t, "temperature#t1:20.0", n.SensorSnapshot())
	heater.SetState(true)
	assert.Equal(t, "temperature#t1:22.0", n.SensorSnapshot())
	assert.Equal(t, "temperature#t1:24.0", n.SensorSnapshot())
}

func TestListenerFanOut(t *testing.T) {
	n, temp, _, heater := newTestNode(t)
	l := &recordingListener{}
	n.AddListener(l)

	temp.SetValue(10)
	heater.SetState(true)
	assert.Equal(t, []string{"temperature#t1"}, l.sensors)
	assert.Equal(t, []string{"heater#heater-01"}, l.actuators)

	ts, ok := n.LastUpdate("t1")
	assert.True(t, ok)
	assert.Equal(t, time.Unix(100, 0), ts)

	n.RemoveListener(l)
	temp.SetValue(11)
	assert.Len(t, l.sensors, 1)
}

func TestRemoveDevices(t *testing.T) {
	n, temp, _, heater := newTestNode(t)
	temp.SetValue(30)

	removed, ok := n.RemoveSensor("T1")
	require.True(t, ok)
	assert.Same(t, temp, removed)
	_, ok = n.LastUpdate("t1")
	assert.False(t, ok)
	assert.Equal(t, "", n.DrainPendingSensorUpdates())

	// 删除后设备不再通知节点
	temp.SetValue(31)
	assert.Equal(t, "", n.DrainPendingSensorUpdates())

	_, ok = n.RemoveActuator("heater-01")
	assert.True(t, ok)
	heater.SetState(true)
	assert.Equal(t, "", n.ActuatorSnapshot())

	_, ok = n.RemoveSensor("missing")
	assert.False(t, ok)
}

func TestAddDuplicate(t *testing.T) {
	n, _, _, _ := newTestNode(t)
	dup, _ := device.NewBasicSensor("temperature", "t1", 0, 1)
	assert.ErrorIs(t, n.AddSensor(dup), ErrDuplicateKey)
}

func TestSharedIDRegistry(t *testing.T) {
	ids := device.NewIDRegistry()
	a, _ := New("a", WithIDRegistry(ids))
	b, _ := New("b", WithIDRegistry(ids))

	s1, _ := device.NewBasicSensor("temperature", "t1", 0, 1)
	s2, _ := device.NewBasicSensor("humidity", "t1", 0, 1)
	require.NoError(t, a.AddSensor(s1))
	assert.ErrorIs(t, b.AddSensor(s2), device.ErrDuplicateID)

	a.RemoveSensor("t1")
	assert.NoError(t, b.AddSensor(s2))
}

func TestResolveActuator(t *testing.T) {
	n, err := New("node-1")
	require.NoError(t, err)
	heater, _ := device.NewBasicActuator("heater", "heater-01", nil)
	// 这个风扇的 ID 恰好和类型名 heater 相同，ID 匹配优先
	fan, _ := device.NewBasicActuator("fan", "heater", nil)
	require.NoError(t, n.AddActuator(heater))

	a, ok := n.ResolveActuator("HEATER")
	require.True(t, ok)
	assert.Same(t, heater, a)

	a, ok = n.ResolveActuator("Heater-01")
	require.True(t, ok)
	assert.Same(t, heater, a)

	require.NoError(t, n.AddActuator(fan))
	a, ok = n.ResolveActuator("heater")
	require.True(t, ok)
	assert.Same(t, fan, a)

	_, ok = n.ResolveActuator("sprinkler")
	assert.False(t, ok)
	_, ok = n.ResolveActuator("")
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	cfg := pkg.NodeConfig{
		ID:             "greenhouse",
		ReportInterval: time.Second,
		Devices: []pkg.DeviceConfig{
			{Type: "temperature", ID: "t1"},
			{Type: "fan", ID: "f1"},
		},
	}
	n, err := Build(context.Background(), cfg, device.NewIDRegistry())
	require.NoError(t, err)
	assert.Len(t, n.Sensors(), 1)
	assert.Len(t, n.Actuators(), 1)
	assert.Equal(t, time.Second, n.ReportInterval())
	assert.True(t, strings.HasPrefix(n.SensorSnapshot(), "temperature#t1:"))

	cfg.Devices = append(cfg.Devices, pkg.DeviceConfig{Type: "warp-core", ID: "w"})
	_, err = Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, device.ErrUnknownType)
}

func TestConcurrentActuatorStateNeverTorn(t *testing.T) {
	n, _, _, heater := newTestNode(t)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(2)
	for _, on := range []bool{true, false} {
		go func(on bool) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				heater.SetState(on)
			}
		}(on)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				s := n.ActuatorSnapshot()
				if s != "heater#heater-01:0" && s != "heater#heater-01:1" {
					t.Errorf("torn snapshot %q", s)
					return
				}
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-done
}
