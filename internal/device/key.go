package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KeySeparator 设备键中类型和 ID 的分隔符
const KeySeparator = "#"

var (
	ErrBlankType = errors.New("设备类型不能为空")
	ErrBlankID   = errors.New("设备 ID 不能为空")
	ErrBadKey    = errors.New("设备键包含保留字符")
)

// 类型中不允许出现任何分隔符；ID 中允许 #，因为只有第一个 # 参与切分
const (
	reservedInType = KeySeparator + ":,|"
	reservedInID   = ":,|"
)

// Key 是设备的规范化标识 (type, id)，两者均为小写且去除首尾空白
type Key struct {
	typ string
	id  string
}

// NewKey 创建设备键，类型为空或含保留字符时失败；ID 可以为空
func NewKey(deviceType, deviceID string) (Key, error) {
	typ := normalize(deviceType)
	if typ == "" {
		return Key{}, ErrBlankType
	}
	if strings.ContainsAny(typ, reservedInType) {
		return Key{}, fmt.Errorf("%w: 类型 %q", ErrBadKey, typ)
	}
	id := normalize(deviceID)
	if strings.ContainsAny(id, reservedInID) {
		return Key{}, fmt.Errorf("%w: ID %q", ErrBadKey, id)
	}
	return Key{typ: typ, id: id}, nil
}

// ParseKey 解析 type#id 或 type 形式的文本
func ParseKey(text string) (Key, error) {
	typ, id, _ := strings.Cut(text, KeySeparator)
	k, err := NewKey(typ, id)
	if err != nil {
		return Key{}, fmt.Errorf("解析设备键 %q 失败: %w", text, err)
	}
	return k, nil
}

func (k Key) Type() string { return k.typ }
func (k Key) ID() string   { return k.id }

// String 返回规范文本 type#id，ID 为空时仅返回 type
func (k Key) String() string {
	if k.id == "" {
		return k.typ
	}
	return k.typ + KeySeparator + k.id
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Reading 是一次传感器读数，序列化为 key:value
type Reading struct {
	Key   Key
	Value float64
}

func (r Reading) String() string {
	return r.Key.String() + ":" + FormatValue(r.Value)
}

// FormatValue 总是带小数点输出 (22.5, 1.0)，避免与执行器的 0/1 混淆
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

// FormatState 执行器状态输出为 1 或 0
func FormatState(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
