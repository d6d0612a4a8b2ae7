package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/stats"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/sweeper"
)

// TestAliasLifecycle 覆盖别名完整生命周期：
// 签发 -> 一小时后收信转发 -> 二十五小时后被清理 -> 过期后的来信被丢弃。
func TestAliasLifecycle(t *testing.T) {
	base := time.Now().UTC().Add(-26 * time.Hour)

	reg := registry.New("temp.mail", 10, nil, zap.NewNop())
	reg.Restore(map[string]domain.Alias{
		"user-1": {OwnerID: "user-1", Address: "ab12cd34ef@temp.mail", CreatedAt: base},
	})
	agg := stats.New(nil, zap.NewNop())

	notifier := new(MockNotifier)
	notifier.On("Notify", "user-1", mock.AnythingOfType("string")).Return(nil)

	router := NewRouter(RouterOptions{
		Registry:  reg,
		Stats:     agg,
		Notifier:  notifier,
		Logger:    zap.NewNop(),
		BodyLimit: 1800,
	})
	sweep := sweeper.New(sweeper.Options{
		Registry: reg,
		Notifier: notifier,
		Logger:   zap.NewNop(),
	})

	// T+1h: 来信被转发给持有者
	sess := new(MockSession)
	sess.On("Fetch", mock.Anything, MessageID(1)).
		Return(rawMail("ab12cd34ef@temp.mail", "Welcome", "first mail"), nil)
	require.NoError(t, router.ProcessMessages(context.Background(), sess, []MessageID{1}))
	notifier.AssertNumberOfCalls(t, "Notify", 1)

	// T+25h: 清理节拍移除过期别名并发送过期通知
	sweep.Tick(base.Add(25 * time.Hour))
	notifier.AssertNumberOfCalls(t, "Notify", 2)
	assert.Empty(t, reg.Snapshot())

	// T+26h: 发往已过期别名的来信被静默丢弃
	sess = new(MockSession)
	sess.On("Fetch", mock.Anything, MessageID(2)).
		Return(rawMail("ab12cd34ef@temp.mail", "Too late", "gone"), nil)
	require.NoError(t, router.ProcessMessages(context.Background(), sess, []MessageID{2}))
	notifier.AssertNumberOfCalls(t, "Notify", 2)

	// 投递统计只计成功匹配的那一封
	counts := agg.WindowCounts(time.Now().UTC(), stats.RetentionWindow)
	assert.Equal(t, 1, counts.Delivered)
}
