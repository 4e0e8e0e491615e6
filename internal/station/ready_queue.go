package station

import (
	"container/heap"

	"flexible-assembly-sim/internal/types"
)

// readySlot 是就绪队列中的元素：组件齐套、等待装配线的订单
type readySlot struct {
	order     types.Order
	estimated int    // 预估加工时间（基础装配时间），排序主键
	sequence  uint64 // 进入就绪队列的单调序号，打破平局保证确定性
	index     int    // 元素在堆中的索引
}

// readyQueue 实现了 heap.Interface 接口，是一个基于最小堆的就绪队列
// 排序规则：预估加工时间短者优先，时间相同时先就绪者优先
type readyQueue []*readySlot

func (rq readyQueue) Len() int { return len(rq) }

func (rq readyQueue) Less(i, j int) bool {
	if rq[i].estimated != rq[j].estimated {
		return rq[i].estimated < rq[j].estimated
	}
	return rq[i].sequence < rq[j].sequence
}

func (rq readyQueue) Swap(i, j int) {
	rq[i], rq[j] = rq[j], rq[i]
	rq[i].index = i
	rq[j].index = j
}

// Push 向队列中添加元素
func (rq *readyQueue) Push(x interface{}) {
	n := len(*rq)
	slot := x.(*readySlot)
	slot.index = n
	*rq = append(*rq, slot)
}

// Pop 从队列中移除并返回排序最靠前的元素
func (rq *readyQueue) Pop() interface{} {
	old := *rq
	n := len(old)
	slot := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	slot.index = -1
	*rq = old[0 : n-1]
	return slot
}

var _ heap.Interface = (*readyQueue)(nil)
