package fsm

import (
	"fmt"
	"sync"
)

// State 定义 AGV 的状态类型
type State string

const (
	StateIdle        State = "IDLE"         // 空闲，可以接受新任务
	StateToWarehouse State = "TO_WAREHOUSE" // 正在驶向仓库
	StatePicking     State = "PICKING"      // 正在取货
	StateToStation   State = "TO_STATION"   // 正在驶向装配站
	StateDropping    State = "DROPPING"     // 正在卸货
	StateReturning   State = "RETURNING"    // 正在返回待命位
)

// Observer 在每次成功的状态转移后被调用
// 回调在锁外执行，回调中不要再调用 Transition
type Observer func(unitID int, from, to State)

// Machine 是 AGV 的有限状态机
// 转移表同时覆盖组件配送和成品回库两条路径的合法走法
type Machine struct {
	mu      sync.Mutex
	current State
	unitID  int // 关联的 AGV 编号
	// transitions 定义合法转移: 当前状态 -> 可达状态集合
	transitions map[State]map[State]bool
	observer    Observer
}

func New(unitID int) *Machine {
	m := &Machine{
		current:     StateIdle,
		unitID:      unitID,
		transitions: make(map[State]map[State]bool),
	}
	m.initTransitions()
	return m
}

func (m *Machine) initTransitions() {
	// 组件配送: IDLE -> TO_WAREHOUSE -> PICKING -> TO_STATION -> DROPPING
	m.addTransition(StateIdle, StateToWarehouse)
	m.addTransition(StateToWarehouse, StatePicking)
	m.addTransition(StatePicking, StateToStation)
	m.addTransition(StateToStation, StateDropping)

	// 成品回库: IDLE -> TO_STATION -> PICKING -> TO_WAREHOUSE -> DROPPING
	m.addTransition(StateIdle, StateToStation)
	m.addTransition(StateToStation, StatePicking)
	m.addTransition(StatePicking, StateToWarehouse)
	m.addTransition(StateToWarehouse, StateDropping)

	// 两条路径共同的收尾: DROPPING -> RETURNING -> IDLE
	m.addTransition(StateDropping, StateReturning)
	m.addTransition(StateReturning, StateIdle)
}

func (m *Machine) addTransition(from, to State) {
	if _, ok := m.transitions[from]; !ok {
		m.transitions[from] = make(map[State]bool)
	}
	m.transitions[from][to] = true
}

// SetObserver 注册状态转移回调
// 必须在状态机开始工作前设置
func (m *Machine) SetObserver(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// Transition 尝试转移到目标状态
// 非法转移返回错误且状态保持不变
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	if !m.transitions[m.current][to] {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition: AGV%d cannot move from %s to %s", m.unitID, from, to)
	}
	from := m.current
	m.current = to
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(m.unitID, from, to)
	}
	return nil
}

// Current 返回当前状态
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
