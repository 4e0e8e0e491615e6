package types

// ComponentID 定义物料组件 ID
// 使用字符串类型，方便在日志和输入文件中直接使用
type ComponentID string

// ProductID 定义产品 ID
type ProductID string

// Destination 定义运输任务的目的地
type Destination string

const (
	DestinationStation   Destination = "ASSEMBLY_STATION" // 装配站：组件配送的目的地
	DestinationWarehouse Destination = "WAREHOUSE"        // 仓库：成品回库的目的地
)

// SchedulingPolicy 定义订单下达的调度策略
type SchedulingPolicy string

const (
	PolicyFIFO     SchedulingPolicy = "FIFO"     // 按下达时间先到先服务
	PolicyPriority SchedulingPolicy = "PRIORITY" // 按优先级降序，下达时间作为次序
	PolicySPT      SchedulingPolicy = "SPT"      // 最短加工时间优先（保留，未实现）
	PolicyEDD      SchedulingPolicy = "EDD"      // 最早交期优先（保留，未实现）
)

// Order 表示一条生产订单
// 由订单文件加载创建；终态字段只由控制中心在完成/取消时写入一次
type Order struct {
	OrderID        int       // 订单唯一标识
	ProductID      ProductID // 要装配的产品
	ReleaseTime    int       // 下达时间（仿真分钟，从仿真开始计）
	Priority       int       // 优先级：数值越大优先级越高
	DueDate        int       // 交期（仿真分钟），未指定为 -1，EDD 策略的落点
	CompletionTime int       // 完成时间（仿真分钟），未完成为 -1
	Completed      bool      // 是否已完成
	Canceled       bool      // 是否已取消（如库存不足）
}

// Product 表示产品定义：基础装配时间与 BOM
// 仿真开始前加载一次，此后只读，由所有装配线共享
type Product struct {
	ID               ProductID
	BaseAssemblyTime int                 // 基础装配时间（仿真分钟）
	BOM              map[ComponentID]int // component_id -> 单件所需数量
}

// TransportTask 表示分派给 AGV 的一次运输任务
// 要么是"向装配站配送组件"，要么是"把成品运回仓库"，由 FinishedProduct 标志区分
type TransportTask struct {
	ComponentID     ComponentID      // 组件 ID；成品回库任务时存放产品 ID
	Quantity        int              // 运输数量（组件配送按单件拆分，恒为 1）
	Destination     Destination      // 目的地
	FinishedProduct bool             // true 表示成品回库任务
	OrderID         int              // 所属订单，成品回库任务为 -1
	Notify          DeliveryNotifier // 送达回调目标，任务构造时显式传入
}

// DeliveryNotifier 是运输任务送达时的回调接口
// 装配站实现该接口；AGV 只依赖这个窄接口，不依赖装配站本身
type DeliveryNotifier interface {
	// ComponentDelivered 通知一个组件已送达装配站
	ComponentDelivered(orderID int, component ComponentID, quantity int)
	// FinishedProductDelivered 通知一件成品已送回仓库
	FinishedProductDelivered(product ProductID)
}

// ParsePolicy 解析配置中的调度策略字符串
// 未知取值回退为 FIFO
func ParsePolicy(s string) SchedulingPolicy {
	switch SchedulingPolicy(s) {
	case PolicyFIFO, PolicyPriority, PolicySPT, PolicyEDD:
		return SchedulingPolicy(s)
	default:
		return PolicyFIFO
	}
}
