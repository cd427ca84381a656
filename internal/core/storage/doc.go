// Package storage 提供可选的持久化存储
//
// 基于 BadgerDB，各组件通过 KVStore 前缀隔离数据：
//
//	前缀   | 使用方 | 说明
//	-------|--------|---------------
//	d/v/   | DHT    | 值记录
//	d/p/   | DHT    | Provider 记录
//
// 使用 Fx：
//
//	app := fx.New(
//	    fx.Supply(cfg),
//	    storage.Module(),
//	)
//
// 手动创建：
//
//	eng, err := storage.New("/data/kaddht.db")
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	dht := storage.NewKVStore(eng, []byte("d/"))
package storage
