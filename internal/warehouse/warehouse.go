package warehouse

import (
	"log/slog"
	"sync"

	"flexible-assembly-sim/internal/types"
)

// Warehouse 管理组件库存和成品库存
// 所有读写都在同一把互斥锁下进行，保证预留操作的原子性
type Warehouse struct {
	mu         sync.Mutex
	components map[types.ComponentID]int // component_id -> 数量
	finished   map[types.ProductID]int   // product_id -> 数量
	logger     *slog.Logger
}

// New 创建一个空仓库
func New(logger *slog.Logger) *Warehouse {
	return &Warehouse{
		components: make(map[types.ComponentID]int),
		finished:   make(map[types.ProductID]int),
		logger:     logger.With("component", "warehouse"),
	}
}

// Has 检查 BOM 所需组件是否全部可用，不修改库存
func (w *Warehouse) Has(required map[types.ComponentID]int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, qty := range required {
		if w.components[id] < qty {
			return false
		}
	}
	return true
}

// Reserve 原子地预留 BOM 所需的全部组件
// 检查和扣减在同一把锁下完成：任何组件不足则不产生任何扣减，
// 其他调用方永远不会观察到部分预留的中间状态
func (w *Warehouse) Reserve(required map[types.ComponentID]int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 先整体校验，任一组件不足立即放弃
	for id, qty := range required {
		available := w.components[id]
		if available < qty {
			// 缺料只是诊断信息，不是错误：调用方会重试或取消
			w.logger.Info("组件库存不足", "component_id", id, "required", qty, "available", available)
			return false
		}
	}

	// 整体扣减
	for id, qty := range required {
		w.components[id] -= qty
	}
	return true
}

// AddComponent 向仓库补充组件
func (w *Warehouse) AddComponent(id types.ComponentID, quantity int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.components[id] += quantity
}

// ComponentQuantity 返回指定组件的当前库存
func (w *Warehouse) ComponentQuantity(id types.ComponentID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.components[id]
}

// AddFinishedProduct 将一件成品入库
// 这是成品回库任务送达回调路径上唯一的库存变更
func (w *Warehouse) AddFinishedProduct(id types.ProductID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finished[id]++
}

// FinishedProductCount 返回指定成品的当前库存
func (w *Warehouse) FinishedProductCount(id types.ProductID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished[id]
}

// Snapshot 返回库存的一份拷贝，用于看板展示
func (w *Warehouse) Snapshot() (map[types.ComponentID]int, map[types.ProductID]int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	components := make(map[types.ComponentID]int, len(w.components))
	for id, qty := range w.components {
		components[id] = qty
	}
	finished := make(map[types.ProductID]int, len(w.finished))
	for id, qty := range w.finished {
		finished[id] = qty
	}
	return components, finished
}
