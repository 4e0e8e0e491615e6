package agv

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/fsm"
	"flexible-assembly-sim/internal/types"
)

// Timing 定义 AGV 各段动作的仿真时长（分钟）
type Timing struct {
	ToWarehouse int // 驶向仓库
	ToStation   int // 驶向装配站
	Picking     int // 取货
	Dropping    int // 卸货
	Return      int // 返回待命位
}

// DefaultTiming 返回默认的动作时长
func DefaultTiming() Timing {
	return Timing{ToWarehouse: 2, ToStation: 3, Picking: 1, Dropping: 1, Return: 2}
}

// AGV 表示一台自动导引运输车
// 每台 AGV 在自己的 goroutine 上运行状态机，一次只执行一个任务，
// 执行完整个取送流程后回到空闲状态
type AGV struct {
	id       int
	mu       sync.Mutex // 保护 task 与状态机的联合判断
	taskCond *sync.Cond // 唤醒运行循环：新任务或停机
	machine  *fsm.Machine
	task     *types.TransportTask // 当前任务，空闲时为 nil
	running  atomic.Bool
	wg       sync.WaitGroup

	timing Timing
	minute time.Duration // 每仿真分钟对应的真实时长

	logger *slog.Logger
	bus    *event.Bus

	// 统计量：独立的单调计数器，KPI 汇总时读取，不参与状态锁
	totalOperations atomic.Int64
	busyMinutes     atomic.Int64
}

// New 创建一台 AGV
func New(id int, timing Timing, minute time.Duration, logger *slog.Logger, bus *event.Bus) *AGV {
	a := &AGV{
		id:      id,
		machine: fsm.New(id),
		timing:  timing,
		minute:  minute,
		logger:  logger.With("component", "agv", "agv_id", id),
		bus:     bus,
	}
	a.taskCond = sync.NewCond(&a.mu)
	a.machine.SetObserver(func(unitID int, _, to fsm.State) {
		bus.Publish(event.Event{Type: event.AGVStateChanged, AGVID: unitID, State: string(to), OrderID: -1})
	})
	return a
}

// ID 返回 AGV 编号
func (a *AGV) ID() int {
	return a.id
}

// Start 启动 AGV 的运行循环
func (a *AGV) Start() {
	if a.running.Swap(true) {
		return
	}
	a.wg.Add(1)
	go a.run()
}

// Stop 请求 AGV 停机并唤醒运行循环
// 非抢占：正在执行的取送流程会完整跑完，只是不再接受唤醒后的新任务
func (a *AGV) Stop() {
	a.running.Store(false)
	a.mu.Lock()
	a.taskCond.Broadcast()
	a.mu.Unlock()
}

// Join 等待运行循环退出
func (a *AGV) Join() {
	a.wg.Wait()
}

// AssignTask 尝试把一个任务分派给 AGV
// 仅当 AGV 处于空闲状态且未持有任务时成功；失败立即返回 false，
// 不阻塞也不排队第二个任务
func (a *AGV) AssignTask(task types.TransportTask) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.machine.Current() != fsm.StateIdle || a.task != nil {
		return false
	}
	t := task
	a.task = &t
	a.taskCond.Signal()
	a.bus.Publish(event.Event{
		Type:      event.TaskAssigned,
		AGVID:     a.id,
		OrderID:   task.OrderID,
		Component: task.ComponentID,
	})
	return true
}

// IsIdle 判断 AGV 是否空闲
func (a *AGV) IsIdle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Current() == fsm.StateIdle && a.task == nil
}

// State 返回当前状态
func (a *AGV) State() fsm.State {
	return a.machine.Current()
}

// CurrentTask 返回当前任务的快照
func (a *AGV) CurrentTask() (types.TransportTask, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.task == nil {
		return types.TransportTask{}, false
	}
	return *a.task, true
}

// TotalOperations 返回累计完成的任务数
func (a *AGV) TotalOperations() int {
	return int(a.totalOperations.Load())
}

// BusyMinutes 返回累计繁忙的仿真分钟数
func (a *AGV) BusyMinutes() int {
	return int(a.busyMinutes.Load())
}

// run 是 AGV 的主状态机循环
func (a *AGV) run() {
	defer a.wg.Done()

	for {
		a.mu.Lock()
		// 等待任务分派或停机信号
		for a.running.Load() && a.task == nil {
			a.taskCond.Wait()
		}
		if !a.running.Load() {
			a.mu.Unlock()
			return
		}
		task := *a.task // 拷贝任务，运输期间不持锁
		a.mu.Unlock()

		busy := 0
		if !task.FinishedProduct {
			// 组件配送：仓库取货，装配站卸货
			busy += a.runSegment(fsm.StateToWarehouse, a.timing.ToWarehouse)
			busy += a.runSegment(fsm.StatePicking, a.timing.Picking)
			busy += a.runSegment(fsm.StateToStation, a.timing.ToStation)
			busy += a.runSegment(fsm.StateDropping, a.timing.Dropping)

			if task.Notify != nil && task.Destination == types.DestinationStation {
				task.Notify.ComponentDelivered(task.OrderID, task.ComponentID, task.Quantity)
			}
		} else {
			// 成品回库：装配站取货，仓库卸货
			busy += a.runSegment(fsm.StateToStation, a.timing.ToStation)
			busy += a.runSegment(fsm.StatePicking, a.timing.Picking)
			busy += a.runSegment(fsm.StateToWarehouse, a.timing.ToWarehouse)
			busy += a.runSegment(fsm.StateDropping, a.timing.Dropping)

			if task.Notify != nil {
				task.Notify.FinishedProductDelivered(types.ProductID(task.ComponentID))
			}
		}

		busy += a.runSegment(fsm.StateReturning, a.timing.Return)

		a.busyMinutes.Add(int64(busy))
		a.totalOperations.Add(1)

		kind := "delivery"
		if task.FinishedProduct {
			kind = "return"
		}
		a.bus.Publish(event.Event{
			Type:      event.TaskCompleted,
			AGVID:     a.id,
			OrderID:   task.OrderID,
			Component: task.ComponentID,
			State:     kind,
			Minutes:   busy,
		})

		a.mu.Lock()
		a.task = nil
		if err := a.machine.Transition(fsm.StateIdle); err != nil {
			a.logger.Error("状态机回到空闲失败", "error", err)
		}
		a.mu.Unlock()
	}
}

// runSegment 转移到指定状态并按仿真时长等待，返回消耗的仿真分钟数
func (a *AGV) runSegment(state fsm.State, minutes int) int {
	if err := a.machine.Transition(state); err != nil {
		a.logger.Error("非法状态转移", "error", err)
		return 0
	}
	if minutes > 0 {
		time.Sleep(time.Duration(minutes) * a.minute)
	}
	return minutes
}
