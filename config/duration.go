package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration JSON 中以 "10s" 形式书写的时长
//
//	{"dht": {"request_timeout": "10s", "query_timeout": "1m"}}
//
// 纯数字按纳秒解释，null 保持零值（使用默认值）。
type Duration time.Duration

// UnmarshalJSON 解析字符串或纳秒数
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("duration must be a string like \"30s\" or integer nanoseconds, got %s", data)
		}
		*d = Duration(n)
		return nil
	}
}

// MarshalJSON 输出 "1m30s" 形式的字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 转换为 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
