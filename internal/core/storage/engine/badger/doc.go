// Package badger 实现基于 BadgerDB 的存储引擎
//
//	cfg := engine.DefaultConfig("/path/to/data")
//	eng, err := badger.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	err = eng.Put([]byte("key"), []byte("value"))
//	value, err := eng.Get([]byte("key"))
package badger
