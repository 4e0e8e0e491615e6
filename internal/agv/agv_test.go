package agv

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/fsm"
	"flexible-assembly-sim/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingNotifier 记录送达回调，供测试断言
type recordingNotifier struct {
	mu         sync.Mutex
	components []types.ComponentID
	products   []types.ProductID
	delivered  chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{delivered: make(chan struct{}, 16)}
}

func (n *recordingNotifier) ComponentDelivered(orderID int, component types.ComponentID, quantity int) {
	n.mu.Lock()
	n.components = append(n.components, component)
	n.mu.Unlock()
	n.delivered <- struct{}{}
}

func (n *recordingNotifier) FinishedProductDelivered(product types.ProductID) {
	n.mu.Lock()
	n.products = append(n.products, product)
	n.mu.Unlock()
	n.delivered <- struct{}{}
}

func newTestAGV(id int) *AGV {
	timing := Timing{ToWarehouse: 1, ToStation: 1, Picking: 1, Dropping: 1, Return: 1}
	return New(id, timing, time.Millisecond, testLogger(), event.NewBus())
}

func TestAssignTask_SecondTaskRejected(t *testing.T) {
	unit := newTestAGV(1)
	task := types.TransportTask{ComponentID: "C1", Quantity: 1, Destination: types.DestinationStation, OrderID: 1}

	require.True(t, unit.AssignTask(task), "空闲 AGV 必须接受任务")
	assert.False(t, unit.AssignTask(task), "持有任务的 AGV 不允许接受第二个任务")
}

// 并发分派压力测试：同一台空闲 AGV 只会接受恰好一个任务
func TestAssignTask_ConcurrentOnlyOneWins(t *testing.T) {
	unit := newTestAGV(1)
	task := types.TransportTask{ComponentID: "C1", Quantity: 1, Destination: types.DestinationStation, OrderID: 1}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if unit.AssignTask(task) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "并发分派时只允许一个胜出")
}

func TestDeliveryLifecycle(t *testing.T) {
	unit := newTestAGV(1)
	notifier := newRecordingNotifier()
	unit.Start()
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	ok := unit.AssignTask(types.TransportTask{
		ComponentID: "C2",
		Quantity:    1,
		Destination: types.DestinationStation,
		OrderID:     5,
		Notify:      notifier,
	})
	require.True(t, ok)

	select {
	case <-notifier.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("等待组件送达回调超时")
	}
	assert.Equal(t, []types.ComponentID{"C2"}, notifier.components)

	// 送达后 AGV 还要走完返回段才回到空闲
	require.Eventually(t, unit.IsIdle, 2*time.Second, time.Millisecond, "任务结束后 AGV 应回到空闲")
	assert.Equal(t, 1, unit.TotalOperations())
	assert.Equal(t, 5, unit.BusyMinutes(), "繁忙分钟数等于各动作段时长之和")
}

func TestReturnLifecycle(t *testing.T) {
	unit := newTestAGV(2)
	notifier := newRecordingNotifier()
	unit.Start()
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	ok := unit.AssignTask(types.TransportTask{
		ComponentID:     "P1",
		Quantity:        1,
		Destination:     types.DestinationWarehouse,
		FinishedProduct: true,
		OrderID:         -1,
		Notify:          notifier,
	})
	require.True(t, ok)

	select {
	case <-notifier.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("等待成品回库回调超时")
	}
	assert.Equal(t, []types.ProductID{"P1"}, notifier.products)
	require.Eventually(t, unit.IsIdle, 2*time.Second, time.Millisecond)
}

func TestBusyWhileExecuting(t *testing.T) {
	timing := Timing{ToWarehouse: 20, ToStation: 20, Picking: 5, Dropping: 5, Return: 10}
	unit := New(3, timing, time.Millisecond, testLogger(), event.NewBus())
	unit.Start()
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	require.True(t, unit.AssignTask(types.TransportTask{ComponentID: "C1", Quantity: 1, Destination: types.DestinationStation, OrderID: 1}))

	// 整个取送流程中不允许接受新任务
	assert.False(t, unit.AssignTask(types.TransportTask{ComponentID: "C3", Quantity: 1, Destination: types.DestinationStation, OrderID: 2}))
	_, held := unit.CurrentTask()
	assert.True(t, held)

	require.Eventually(t, unit.IsIdle, 2*time.Second, time.Millisecond)
	require.True(t, unit.AssignTask(types.TransportTask{ComponentID: "C3", Quantity: 1, Destination: types.DestinationStation, OrderID: 2}),
		"回到空闲后必须能接受新任务")
}

func TestStopFinishesCurrentTask(t *testing.T) {
	unit := newTestAGV(4)
	notifier := newRecordingNotifier()
	unit.Start()

	require.True(t, unit.AssignTask(types.TransportTask{
		ComponentID: "C1", Quantity: 1, Destination: types.DestinationStation, OrderID: 1, Notify: notifier,
	}))
	// 等任务真正开跑后再停机
	require.Eventually(t, func() bool {
		return unit.State() != fsm.StateIdle
	}, 2*time.Second, time.Millisecond)
	unit.Stop()
	unit.Join()

	// 停机是非抢占的：在途任务完整跑完
	assert.Equal(t, 1, unit.TotalOperations())
	assert.Len(t, notifier.components, 1)
}
