package web

import (
	"sync"

	"flexible-assembly-sim/internal/types"
)

// OrderState 定义了用于看板展示的订单状态
type OrderState struct {
	ID          int             `json:"id"`
	ProductID   types.ProductID `json:"product_id"`
	Priority    int             `json:"priority"`
	ReleaseTime int             `json:"release_time"`
	Status      string          `json:"status"` // RELEASED / STAGING / READY / COMPLETED / CANCELED
	Line        int             `json:"line"`   // 完成装配的线号，未完成为 -1
	Completion  int             `json:"completion_time,omitempty"`
}

// AGVState 定义了用于看板展示的 AGV 状态
type AGVState struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

// QueueDepths 是装配站两级队列的当前深度，按订单状态聚合
type QueueDepths struct {
	Waiting int `json:"waiting"` // 已下达、等待备料
	Staging int `json:"staging"` // 备料中，组件在途
	Ready   int `json:"ready"`   // 组件齐套，等待装配线
}

// CellState 代表整个装配单元的实时状态快照
type CellState struct {
	SimTime    int                       `json:"sim_time"`
	Orders     map[int]OrderState        `json:"orders"`
	AGVs       map[int]AGVState          `json:"agvs"`
	Queues     QueueDepths               `json:"queue_depths"`
	Components map[types.ComponentID]int `json:"components"`
	Stored     map[types.ProductID]int   `json:"finished_products"`
}

// InventorySource 是看板读取库存快照的窄接口，由仓库实现
type InventorySource interface {
	Snapshot() (map[types.ComponentID]int, map[types.ProductID]int)
}

// StateTracker 负责追踪装配单元的实时状态，并通知看板更新
type StateTracker struct {
	mu        sync.RWMutex
	state     CellState
	inventory InventorySource
	hub       *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例
// inventory 可以为 nil，此时快照不携带组件库存
func NewStateTracker(hub *Hub, inventory InventorySource) *StateTracker {
	return &StateTracker{
		state: CellState{
			Orders: make(map[int]OrderState),
			AGVs:   make(map[int]AGVState),
			Stored: make(map[types.ProductID]int),
		},
		inventory: inventory,
		hub:       hub,
	}
}

// OrderReleased 登记一条新下达的订单并广播
func (st *StateTracker) OrderReleased(order types.Order, simTime int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.SimTime = simTime
	st.state.Orders[order.OrderID] = OrderState{
		ID:          order.OrderID,
		ProductID:   order.ProductID,
		Priority:    order.Priority,
		ReleaseTime: order.ReleaseTime,
		Status:      "RELEASED",
		Line:        -1,
	}
	st.hub.BroadcastState(st.snapshotLocked())
}

// UpdateOrderStatus 更新单条订单的状态并广播
// 订单不存在时不创建（状态事件可能先于下达事件到达，直接丢弃）
func (st *StateTracker) UpdateOrderStatus(orderID int, status string, completion int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if order, ok := st.state.Orders[orderID]; ok {
		order.Status = status
		if completion > 0 {
			order.Completion = completion
		}
		st.state.Orders[orderID] = order
	}
	st.hub.BroadcastState(st.snapshotLocked())
}

// OrderCompleted 把订单标记为已完成并记录完成装配的线号
func (st *StateTracker) OrderCompleted(orderID, lineID, completion int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if order, ok := st.state.Orders[orderID]; ok {
		order.Status = "COMPLETED"
		order.Line = lineID
		if completion > 0 {
			order.Completion = completion
		}
		st.state.Orders[orderID] = order
	}
	st.hub.BroadcastState(st.snapshotLocked())
}

// UpdateAGV 更新单台 AGV 的状态并广播
func (st *StateTracker) UpdateAGV(agvID int, state string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.AGVs[agvID] = AGVState{ID: agvID, State: state}
	st.hub.BroadcastState(st.snapshotLocked())
}

// ProductStored 登记一件入库成品并广播
func (st *StateTracker) ProductStored(product types.ProductID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Stored[product]++
	st.hub.BroadcastState(st.snapshotLocked())
}

// GetStateSnapshot 返回当前状态的一个深拷贝副本
// 用于 /api/state 查询和新客户端的全量同步
func (st *StateTracker) GetStateSnapshot() CellState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshotLocked()
}

// snapshotLocked 在持锁状态下组装一个自洽的深拷贝快照：
// 队列深度由订单状态聚合得出，组件库存从仓库读取
func (st *StateTracker) snapshotLocked() CellState {
	snapshot := CellState{
		SimTime:    st.state.SimTime,
		Orders:     make(map[int]OrderState, len(st.state.Orders)),
		AGVs:       make(map[int]AGVState, len(st.state.AGVs)),
		Components: make(map[types.ComponentID]int),
		Stored:     make(map[types.ProductID]int, len(st.state.Stored)),
	}
	for id, order := range st.state.Orders {
		snapshot.Orders[id] = order
		switch order.Status {
		case "RELEASED":
			snapshot.Queues.Waiting++
		case "STAGING":
			snapshot.Queues.Staging++
		case "READY":
			snapshot.Queues.Ready++
		}
	}
	for id, unit := range st.state.AGVs {
		snapshot.AGVs[id] = unit
	}
	for id, count := range st.state.Stored {
		snapshot.Stored[id] = count
	}
	if st.inventory != nil {
		components, _ := st.inventory.Snapshot()
		snapshot.Components = components
	}
	return snapshot
}
