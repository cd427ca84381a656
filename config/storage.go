package config

import "path/filepath"

// StorageConfig 存储配置
//
// DataDir 为空时 Provider 和值记录只保存在内存中。
//
//	${DataDir}/
//	└── kaddht.db/          # BadgerDB 数据库
type StorageConfig struct {
	// DataDir 数据目录路径
	DataDir string `json:"data_dir,omitempty"`
}

// DefaultStorageConfig 返回默认的存储配置（内存模式）
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Validate 验证存储配置
func (c StorageConfig) Validate() error {
	return nil
}

// Persistent 是否启用持久化
func (c StorageConfig) Persistent() bool {
	return c.DataDir != ""
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "kaddht.db")
}
