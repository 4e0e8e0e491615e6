package event

import (
	"sync"

	"flexible-assembly-sim/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义仿真过程中的所有业务事件类型
const (
	OrderReleased         EventType = "OrderReleased"         // 订单由控制中心下达
	OrderStaged           EventType = "OrderStaged"           // 订单预留成功，进入备料
	ReservationFailed     EventType = "ReservationFailed"     // 库存预留失败（将重试或取消）
	OrderReady            EventType = "OrderReady"            // 订单组件齐套，进入就绪队列
	OrderCompleted        EventType = "OrderCompleted"        // 订单装配完成
	OrderCanceled         EventType = "OrderCanceled"         // 订单被取消
	ComponentDelivered    EventType = "ComponentDelivered"    // 一个组件送达装配站
	FinishedProductStored EventType = "FinishedProductStored" // 一件成品入库
	TaskAssigned          EventType = "TaskAssigned"          // 运输任务分派给 AGV
	TaskCompleted         EventType = "TaskCompleted"         // AGV 完成一次运输任务
	AGVStateChanged       EventType = "AGVStateChanged"       // AGV 状态机发生转移
)

// Event 结构体定义了事件的数据负载
// 不同事件类型只填充与之相关的字段
type Event struct {
	Type      EventType
	Order     *types.Order        // 订单相关事件携带订单快照
	OrderID   int                 // 关联的订单 ID（无关时为 -1）
	Component types.ComponentID   // 组件相关事件
	Product   types.ProductID     // 成品相关事件
	AGVID     int                 // AGV 相关事件
	State     string              // AGV 状态转移后的状态
	Line      int                 // 装配线编号（完成事件）
	SimTime   int                 // 事件发生的仿真时间（分钟）
	Minutes   int                 // 耗时类事件的时长（分钟）
	Attempt   int                 // 重试类事件的尝试次数
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
// 核心组件只负责发布，指标、看板和审计日志通过订阅解耦
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被调用
// 处理器在独立的 goroutine 中执行，单个处理器阻塞不会影响发布方
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if handlers, ok := b.handlers[e.Type]; ok {
		for _, handler := range handlers {
			go handler(e)
		}
	}
}
