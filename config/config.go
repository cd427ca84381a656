// Package config 提供统一的 JSON 配置
//
// 主 Config 嵌入各组件的子配置，每个子配置在独立文件中定义。
//
//	cfg, err := config.Load("kaddht.json")
//	if err != nil {
//	    return err
//	}
//	cfg.DHT.Alpha = 5
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config go-kaddht 的完整配置
type Config struct {
	// DHT 路由、查询与记录存储配置
	DHT DHTConfig `json:"dht"`

	// Storage 持久化存储配置
	Storage StorageConfig `json:"storage"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		DHT:     DefaultDHTConfig(),
		Storage: DefaultStorageConfig(),
		Log:     DefaultLogConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.DHT.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值：
//
//	{
//	  "dht": {"alpha": 5, "query_timeout": "30s"},
//	  "storage": {"data_dir": "./data"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Load 从 JSON 文件加载并验证配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cloned := *c
	cloned.DHT.BootstrapPeers = make([]BootstrapPeer, len(c.DHT.BootstrapPeers))
	for i, p := range c.DHT.BootstrapPeers {
		cloned.DHT.BootstrapPeers[i] = BootstrapPeer{
			PeerID: p.PeerID,
			Addrs:  append([]string(nil), p.Addrs...),
		}
	}
	return &cloned
}
