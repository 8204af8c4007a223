package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu      sync.Mutex
	updates []Device
}

func (o *countingObserver) OnDeviceUpdated(d Device) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, d)
}

func (o *countingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}

func TestNewBasicSensorValidation(t *testing.T) {
	_, err := NewBasicSensor("temperature", "", 0, 10)
	assert.ErrorIs(t, err, ErrBlankID)

	_, err = NewBasicSensor("", "t1", 0, 10)
	assert.ErrorIs(t, err, ErrBlankType)

	_, err = NewBasicSensor("temperature", "t1", 10, 0)
	assert.ErrorIs(t, err, ErrBadBounds)

	_, err = NewBasicSensor("temperature", "t1:x", 0, 10)
	assert.ErrorIs(t, err, ErrBadKey)

	s, err := NewBasicSensor("Temperature", "T1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "t1", s.ID())
	assert.Equal(t, 5.0, s.CurrentValue())
	assert.Equal(t, DefaultUpdateInterval, s.UpdateInterval())
}

func TestSensorClamp(t *testing.T) {
	s, err := NewBasicSensor("humidity", "h1", 0, 100, WithInitial(250), WithInterval(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.CurrentValue())
	assert.Equal(t, time.Second, s.UpdateInterval())

	assert.Equal(t, 0.0, s.SetValue(-5))
	assert.Equal(t, 10.0, s.Adjust(10))
	assert.Equal(t, 100.0, s.Adjust(1000))
}

func TestSensorReadValueStaysInBounds(t *testing.T) {
	s, err := NewBasicSensor("co2", "c1", 400, 410, WithDrift(50))
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		v, err := s.ReadValue()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 400.0)
		assert.LessOrEqual(t, v, 410.0)
	}
}

func TestSensorNotifiesObserver(t *testing.T) {
	s, _ := NewBasicSensor("light", "l1", 0, 100)
	obs := &countingObserver{}
	s.SetObserver(obs)

	s.SetValue(10)
	_, _ = s.ReadValue()
	assert.Equal(t, 2, obs.count())

	s.SetObserver(nil)
	s.SetValue(20)
	assert.Equal(t, 2, obs.count())
}

func TestSensorConcurrentAdjust(t *testing.T) {
	s, _ := NewBasicSensor("temperature", "t1", 0, 1000, WithInitial(0))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Adjust(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500.0, s.CurrentValue())
}
