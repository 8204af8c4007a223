package panel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"nodelink/internal/device"
)

var ErrBadEntry = errors.New("无法解析的数据项")

// Entry 是 DATA 负载中的一项，Sensor 为 false 时表示执行器
type Entry struct {
	Key    device.Key
	Sensor bool
	Value  float64
	State  bool
}

// ParsePayload 解析 k1:v1,k2:v2,... 形式的负载。
// 字面量 0 和 1 视为执行器状态，其余按浮点数解析为传感器读数；
// 单项解析失败不会中断其余项，错误一并返回。
func ParsePayload(payload string) ([]Entry, []error) {
	var entries []Entry
	var errs []error
	for _, raw := range strings.Split(payload, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		e, err := parseEntry(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}

func parseEntry(raw string) (Entry, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return Entry{}, fmt.Errorf("%w: %q", ErrBadEntry, raw)
	}
	key, err := device.ParseKey(parts[0])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: %w", ErrBadEntry, raw, err)
	}
	switch value := strings.TrimSpace(parts[1]); value {
	case "0", "1":
		return Entry{Key: key, State: value == "1"}, nil
	default:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Entry{}, fmt.Errorf("%w: %q", ErrBadEntry, raw)
		}
		return Entry{Key: key, Sensor: true, Value: v}, nil
	}
}
