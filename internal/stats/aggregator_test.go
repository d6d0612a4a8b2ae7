package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage/memory"
)

func TestWindowCounts(t *testing.T) {
	t.Run("窗口内事件全部计入", func(t *testing.T) {
		a := New(nil, zap.NewNop())
		now := time.Now().UTC()

		for i := 0; i < 3; i++ {
			a.RecordGenerated(now.Add(-time.Duration(i) * time.Hour))
		}
		for i := 0; i < 5; i++ {
			a.RecordDelivered(now.Add(-time.Duration(i) * time.Minute))
		}

		counts := a.WindowCounts(now, RetentionWindow)
		assert.Equal(t, domain.WindowCounts{Generated: 3, Delivered: 5}, counts)
	})

	t.Run("时间推过窗口后归零", func(t *testing.T) {
		a := New(nil, zap.NewNop())
		base := time.Now().UTC()

		a.RecordGenerated(base)
		a.RecordDelivered(base)

		counts := a.WindowCounts(base.Add(RetentionWindow+time.Minute), RetentionWindow)
		assert.Equal(t, domain.WindowCounts{}, counts)
	})

	t.Run("裁剪是破坏性的", func(t *testing.T) {
		a := New(nil, zap.NewNop())
		base := time.Now().UTC()

		a.RecordDelivered(base)

		// 读一次把事件裁掉
		counts := a.WindowCounts(base.Add(25*time.Hour), RetentionWindow)
		require.Equal(t, 0, counts.Delivered)

		// 回到窗口内再读，被裁掉的历史不会回来
		counts = a.WindowCounts(base.Add(time.Hour), RetentionWindow)
		assert.Equal(t, 0, counts.Delivered)
	})

	t.Run("只裁剪过期部分", func(t *testing.T) {
		a := New(nil, zap.NewNop())
		now := time.Now().UTC()

		a.RecordDelivered(now.Add(-25 * time.Hour))
		a.RecordDelivered(now.Add(-23 * time.Hour))
		a.RecordDelivered(now.Add(-time.Hour))

		counts := a.WindowCounts(now, RetentionWindow)
		assert.Equal(t, 2, counts.Delivered)
	})
}

func TestRecordPrunesOnWrite(t *testing.T) {
	a := New(nil, zap.NewNop())
	base := time.Now().UTC()

	a.RecordGenerated(base)
	// 25 小时后的写入会顺带裁掉第一条
	a.RecordGenerated(base.Add(25 * time.Hour))

	counts := a.WindowCounts(base.Add(25*time.Hour), RetentionWindow)
	assert.Equal(t, 1, counts.Generated)
}

func TestPersistence(t *testing.T) {
	t.Run("每次变更写出快照", func(t *testing.T) {
		store := memory.NewStore()
		a := New(store, zap.NewNop())
		now := time.Now().UTC()

		a.RecordGenerated(now)
		a.RecordDelivered(now)
		a.WindowCounts(now, RetentionWindow)

		assert.Equal(t, 3, store.SaveStatsCalls)

		state, err := store.LoadState()
		require.NoError(t, err)
		assert.Len(t, state.Stats.Generated, 1)
		assert.Len(t, state.Stats.Delivered, 1)
	})

	t.Run("重启后从快照恢复", func(t *testing.T) {
		now := time.Now().UTC()
		a := New(nil, zap.NewNop())
		a.Restore(&domain.StatsLog{
			Generated: []time.Time{now.Add(-time.Hour)},
			Delivered: []time.Time{now.Add(-2 * time.Hour), now.Add(-3 * time.Hour)},
		})

		counts := a.WindowCounts(now, RetentionWindow)
		assert.Equal(t, domain.WindowCounts{Generated: 1, Delivered: 2}, counts)
	})
}
