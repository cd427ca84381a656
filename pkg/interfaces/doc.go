// Package interfaces 定义 go-kaddht 的公共接口
//
//   - host.go     - Host / Stream，DHT 之外的传输主机（外部协作者）
//   - network.go  - Network，DHT 唯一依赖的消息收发边界
//   - record.go   - Validator / Selector，可插拔的记录校验与择优
//   - dht.go      - DHT 门面接口
//
// 实现位置：internal/discovery/dht/
package interfaces
