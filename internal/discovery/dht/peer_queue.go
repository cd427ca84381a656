package dht

import (
	"container/heap"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// peerQueue 按到目标距离排序的候选队列
//
// 同一节点只会入队一次。非并发安全，由所属 Path 加锁使用。
type peerQueue struct {
	target types.DHTID
	items  peerHeap
	seen   map[types.PeerID]struct{}
}

type queueItem struct {
	id       types.PeerID
	distance types.DHTID
}

func newPeerQueue(target types.DHTID) *peerQueue {
	return &peerQueue{
		target: target,
		seen:   make(map[types.PeerID]struct{}),
	}
}

// push 入队，已见过的节点返回 false
func (q *peerQueue) push(id types.PeerID) bool {
	if _, ok := q.seen[id]; ok {
		return false
	}
	q.seen[id] = struct{}{}
	heap.Push(&q.items, queueItem{
		id:       id,
		distance: types.ConvertPeerID(id).Xor(q.target),
	})
	return true
}

// pop 取出距离最近的节点
func (q *peerQueue) pop() (types.PeerID, bool) {
	if len(q.items) == 0 {
		return types.EmptyPeerID, false
	}
	item := heap.Pop(&q.items).(queueItem)
	return item.id, true
}

func (q *peerQueue) len() int {
	return len(q.items)
}

// peerHeap 实现 heap.Interface，距离相同时按 PeerID 字节序
type peerHeap []queueItem

func (h peerHeap) Len() int { return len(h) }

func (h peerHeap) Less(i, j int) bool {
	if c := h[i].distance.Compare(h[j].distance); c != 0 {
		return c < 0
	}
	return types.ComparePeers(h[i].id, h[j].id) < 0
}

func (h peerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *peerHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *peerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
