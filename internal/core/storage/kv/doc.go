// Package kv 提供带前缀隔离的 KV 存储
//
// 每个组件使用不同的前缀隔离数据，DHT 的 Provider 记录位于 d/p/，
// 值记录位于 d/v/：
//
//	providers := kv.New(eng, []byte("d/p/"))
//	providers.PutJSON(key, &rec) // 实际键: d/p/<key>
package kv
