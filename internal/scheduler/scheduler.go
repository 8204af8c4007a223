// Package scheduler 为每个传感器运行一个独立的周期读取协程。
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nodelink/internal/device"
	"nodelink/internal/pkg"

	"go.uber.org/zap"
)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler 按传感器的更新周期反复调用 ReadValue。同一设备 ID 重新调度会替换旧的协程。
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
}

func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(pkg.WithLoggerAndModule(ctx, pkg.LoggerFromContext(ctx), "scheduler"))
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Schedule 启动传感器的读取协程
func (s *Scheduler) Schedule(sensor device.Sensor) {
	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.jobs[sensor.ID()]
	s.jobs[sensor.ID()] = j
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	go s.run(ctx, sensor, j)
}

// ScheduleAll 调度节点上的全部传感器
func (s *Scheduler) ScheduleAll(sensors []device.Sensor) {
	for _, sensor := range sensors {
		s.Schedule(sensor)
	}
}

func (s *Scheduler) run(ctx context.Context, sensor device.Sensor, j *job) {
	defer close(j.done)
	defer s.forget(sensor.ID(), j)
	log := pkg.LoggerFromContext(ctx).With(zap.String("sensor", sensor.Key().String()))
	log.Debug("开始周期读取", zap.Duration("interval", sensor.UpdateInterval()))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}
		if err := read(sensor); err != nil {
			log.Warn("读取传感器失败", zap.Error(err))
		}
		timer.Reset(sensor.UpdateInterval())
	}
}

// read 调用一次 ReadValue，panic 也按错误处理
func read(sensor device.Sensor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("读取时发生 panic: %v", r)
		}
	}()
	_, err = sensor.ReadValue()
	return err
}

func (s *Scheduler) forget(id string, j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[id] == j {
		delete(s.jobs, id)
	}
}

// Cancel 停止一个传感器的读取，返回是否存在
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if ok {
		j.cancel()
	}
	return ok
}

// Active 返回正在调度的设备 ID（有序）
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop 停止全部协程并等待退出
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()
	for _, j := range jobs {
		<-j.done
	}
}
