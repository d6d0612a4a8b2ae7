package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/stats"
)

// MockNotifier 模拟订阅者通知。
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ownerID, text string) error {
	return m.Called(ownerID, text).Error(0)
}

func newServiceFixture(notifier *MockNotifier, cooldown time.Duration) (*AliasService, *registry.Registry, *stats.Aggregator) {
	reg := registry.New("temp.mail", 10, nil, zap.NewNop())
	agg := stats.New(nil, zap.NewNop())
	svc := NewAliasService(AliasServiceOptions{
		Registry: reg,
		Stats:    agg,
		Notifier: notifier,
		Logger:   zap.NewNop(),
		AdminID:  "admin-1",
		Cooldown: cooldown,
	})
	return svc, reg, agg
}

func TestRequest(t *testing.T) {
	t.Run("首次请求签发别名并计生成事件", func(t *testing.T) {
		notifier := new(MockNotifier)
		svc, _, agg := newServiceFixture(notifier, 0)

		alias, err := svc.Request("user-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", alias.OwnerID)
		assert.NotEmpty(t, alias.Address)

		counts := agg.WindowCounts(time.Now().UTC(), stats.RetentionWindow)
		assert.Equal(t, 1, counts.Generated)

		// 首次签发没有被替换的别名，无需通知
		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("重复请求通知旧别名失效", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.AnythingOfType("string")).Return(nil)
		svc, reg, _ := newServiceFixture(notifier, 0)

		first, err := svc.Request("user-1")
		require.NoError(t, err)
		second, err := svc.Request("user-1")
		require.NoError(t, err)
		assert.NotEqual(t, first.Address, second.Address)

		notifier.AssertNumberOfCalls(t, "Notify", 1)
		text := notifier.Calls[0].Arguments.String(1)
		assert.Contains(t, text, first.Address)

		// 旧地址立即停止解析
		_, ok := reg.ResolveLocalPart(first.LocalPart())
		assert.False(t, ok)
	})

	t.Run("冷却期内重复请求被拒绝", func(t *testing.T) {
		notifier := new(MockNotifier)
		svc, _, _ := newServiceFixture(notifier, time.Hour)

		_, err := svc.Request("user-1")
		require.NoError(t, err)

		_, err = svc.Request("user-1")
		assert.ErrorIs(t, err, ErrTooManyRequests)
	})

	t.Run("冷却对不同订阅者相互独立", func(t *testing.T) {
		notifier := new(MockNotifier)
		svc, _, _ := newServiceFixture(notifier, time.Hour)

		_, err := svc.Request("user-1")
		require.NoError(t, err)
		_, err = svc.Request("user-2")
		assert.NoError(t, err)
	})
}

func TestSummary(t *testing.T) {
	t.Run("管理员获取近24小时摘要", func(t *testing.T) {
		notifier := new(MockNotifier)
		svc, _, agg := newServiceFixture(notifier, 0)

		now := time.Now().UTC()
		_, err := svc.Request("user-1")
		require.NoError(t, err)
		_, err = svc.Request("user-2")
		require.NoError(t, err)
		agg.RecordDelivered(now)
		agg.RecordDelivered(now)
		agg.RecordDelivered(now)

		summary, err := svc.Summary("admin-1")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.ActiveAliases)
		assert.Equal(t, 3, summary.DeliveredLast24h)
	})

	t.Run("非管理员被拒绝", func(t *testing.T) {
		notifier := new(MockNotifier)
		svc, _, _ := newServiceFixture(notifier, 0)

		_, err := svc.Summary("user-1")
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})
}
