package warehouse

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexible-assembly-sim/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReserve_DeductsWholeBOM(t *testing.T) {
	wh := New(testLogger())
	wh.AddComponent("C1", 5)
	wh.AddComponent("C2", 3)

	ok := wh.Reserve(map[types.ComponentID]int{"C1": 2, "C2": 1})

	require.True(t, ok, "库存充足时预留必须成功")
	assert.Equal(t, 3, wh.ComponentQuantity("C1"))
	assert.Equal(t, 2, wh.ComponentQuantity("C2"))
}

func TestReserve_ShortfallHasNoSideEffects(t *testing.T) {
	wh := New(testLogger())
	wh.AddComponent("C1", 5)
	wh.AddComponent("C2", 0)

	ok := wh.Reserve(map[types.ComponentID]int{"C1": 2, "C2": 1})

	require.False(t, ok, "任一组件缺料时预留必须失败")
	// 失败时不允许出现部分扣减
	assert.Equal(t, 5, wh.ComponentQuantity("C1"))
	assert.Equal(t, 0, wh.ComponentQuantity("C2"))
}

func TestReserve_UnknownComponentFails(t *testing.T) {
	wh := New(testLogger())

	ok := wh.Reserve(map[types.ComponentID]int{"C9": 1})

	assert.False(t, ok)
	assert.Equal(t, 0, wh.ComponentQuantity("C9"))
}

// 并发预留压力测试：提交的扣减总量恰好等于成功次数乘以 BOM 用量，
// 库存永远不会透支为负
func TestReserve_ConcurrentNoOverbooking(t *testing.T) {
	wh := New(testLogger())
	wh.AddComponent("C1", 100)
	bom := map[types.ComponentID]int{"C1": 3}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if wh.Reserve(bom) {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 100 / 3 = 33 次成功，剩 1 件
	assert.Equal(t, 33, successes)
	assert.Equal(t, 100-successes*3, wh.ComponentQuantity("C1"))
	assert.GreaterOrEqual(t, wh.ComponentQuantity("C1"), 0, "库存不允许为负")
}

func TestFinishedProducts(t *testing.T) {
	wh := New(testLogger())

	assert.Equal(t, 0, wh.FinishedProductCount("P1"))
	wh.AddFinishedProduct("P1")
	wh.AddFinishedProduct("P1")
	assert.Equal(t, 2, wh.FinishedProductCount("P1"))
}

func TestHas_DoesNotModifyInventory(t *testing.T) {
	wh := New(testLogger())
	wh.AddComponent("C1", 2)

	assert.True(t, wh.Has(map[types.ComponentID]int{"C1": 2}))
	assert.False(t, wh.Has(map[types.ComponentID]int{"C1": 3}))
	assert.Equal(t, 2, wh.ComponentQuantity("C1"))
}

func TestSnapshot_IsACopy(t *testing.T) {
	wh := New(testLogger())
	wh.AddComponent("C1", 4)
	wh.AddFinishedProduct("P1")

	components, finished := wh.Snapshot()
	components["C1"] = 0
	finished["P1"] = 0

	assert.Equal(t, 4, wh.ComponentQuantity("C1"), "修改快照不应影响库存")
	assert.Equal(t, 1, wh.FinishedProductCount("P1"))
}
