package station

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"

	"flexible-assembly-sim/internal/types"
)

func TestReadyQueue_ShortestEstimateFirst(t *testing.T) {
	rq := readyQueue{}
	heap.Push(&rq, &readySlot{order: types.Order{OrderID: 1}, estimated: 20, sequence: 1})
	heap.Push(&rq, &readySlot{order: types.Order{OrderID: 2}, estimated: 10, sequence: 2})
	heap.Push(&rq, &readySlot{order: types.Order{OrderID: 3}, estimated: 15, sequence: 3})

	var popped []int
	for rq.Len() > 0 {
		popped = append(popped, heap.Pop(&rq).(*readySlot).order.OrderID)
	}
	assert.Equal(t, []int{2, 3, 1}, popped)
}

func TestReadyQueue_SequenceBreaksTies(t *testing.T) {
	rq := readyQueue{}
	heap.Push(&rq, &readySlot{order: types.Order{OrderID: 1}, estimated: 10, sequence: 3})
	heap.Push(&rq, &readySlot{order: types.Order{OrderID: 2}, estimated: 10, sequence: 1})
	heap.Push(&rq, &readySlot{order: types.Order{OrderID: 3}, estimated: 10, sequence: 2})

	var popped []int
	for rq.Len() > 0 {
		popped = append(popped, heap.Pop(&rq).(*readySlot).order.OrderID)
	}
	// 预估时间相同时先就绪者优先
	assert.Equal(t, []int{2, 3, 1}, popped)
}
