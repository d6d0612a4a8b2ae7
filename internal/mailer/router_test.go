package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/notify"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/stats"
)

// MockSession 模拟邮箱会话。
type MockSession struct {
	mock.Mock
}

func (m *MockSession) AwaitActivity(ctx context.Context, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, timeout)
	return args.Bool(0), args.Error(1)
}

func (m *MockSession) ListUnseen(ctx context.Context) ([]MessageID, error) {
	args := m.Called(ctx)
	if ids := args.Get(0); ids != nil {
		return ids.([]MessageID), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Fetch(ctx context.Context, id MessageID) ([]byte, error) {
	args := m.Called(ctx, id)
	if raw := args.Get(0); raw != nil {
		return raw.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

// MockNotifier 模拟订阅者通知。
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ownerID, text string) error {
	return m.Called(ownerID, text).Error(0)
}

func rawMail(to, subject, body string) []byte {
	return []byte("From: sender@example.com\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

func newRouterFixture(notifier notify.Notifier) (*Router, *registry.Registry, *stats.Aggregator) {
	reg := registry.New("temp.mail", 10, nil, zap.NewNop())
	reg.Restore(map[string]domain.Alias{
		"user-1": {OwnerID: "user-1", Address: "ab12cd34ef@temp.mail", CreatedAt: time.Now().UTC()},
	})
	agg := stats.New(nil, zap.NewNop())

	router := NewRouter(RouterOptions{
		Registry:  reg,
		Stats:     agg,
		Notifier:  notifier,
		Logger:    zap.NewNop(),
		BodyLimit: 1800,
	})
	return router, reg, agg
}

func TestProcessMessages(t *testing.T) {
	t.Run("匹配别名则通知并计投递", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.AnythingOfType("string")).Return(nil)
		router, _, agg := newRouterFixture(notifier)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).
			Return(rawMail("ab12cd34ef@temp.mail", "Hi", "body"), nil)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1})
		require.NoError(t, err)

		notifier.AssertNumberOfCalls(t, "Notify", 1)
		counts := agg.WindowCounts(time.Now().UTC(), stats.RetentionWindow)
		assert.Equal(t, 1, counts.Delivered)

		// 通知内容包含转发字段
		text := notifier.Calls[0].Arguments.String(1)
		assert.Contains(t, text, "sender@example.com")
		assert.Contains(t, text, "Hi")
	})

	t.Run("大小写不同的收件地址仍能匹配", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.Anything).Return(nil)
		router, _, _ := newRouterFixture(notifier)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).
			Return(rawMail("AB12CD34EF@TEMP.MAIL", "Hi", "body"), nil)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1})
		require.NoError(t, err)
		notifier.AssertNumberOfCalls(t, "Notify", 1)
	})

	t.Run("未匹配的邮件静默丢弃", func(t *testing.T) {
		notifier := new(MockNotifier)
		router, _, agg := newRouterFixture(notifier)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).
			Return(rawMail("nobodyhere0@temp.mail", "Spam", "buy now"), nil)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1})
		require.NoError(t, err)

		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		counts := agg.WindowCounts(time.Now().UTC(), stats.RetentionWindow)
		assert.Equal(t, 0, counts.Delivered)
	})

	t.Run("通知失败不影响投递统计与批次", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.Anything).Return(errors.New("dm closed"))
		router, _, agg := newRouterFixture(notifier)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).
			Return(rawMail("ab12cd34ef@temp.mail", "First", "a"), nil)
		sess.On("Fetch", mock.Anything, MessageID(2)).
			Return(rawMail("ab12cd34ef@temp.mail", "Second", "b"), nil)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1, 2})
		require.NoError(t, err)

		// 匹配即计数，与通知结果无关
		counts := agg.WindowCounts(time.Now().UTC(), stats.RetentionWindow)
		assert.Equal(t, 2, counts.Delivered)
		notifier.AssertNumberOfCalls(t, "Notify", 2)
	})

	t.Run("解析失败跳过该封继续批次", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.Anything).Return(nil)
		router, _, agg := newRouterFixture(notifier)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).
			Return([]byte("garbage without headers"), nil)
		sess.On("Fetch", mock.Anything, MessageID(2)).
			Return(rawMail("ab12cd34ef@temp.mail", "Ok", "fine"), nil)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1, 2})
		require.NoError(t, err)

		notifier.AssertNumberOfCalls(t, "Notify", 1)
		counts := agg.WindowCounts(time.Now().UTC(), stats.RetentionWindow)
		assert.Equal(t, 1, counts.Delivered)
	})

	t.Run("同批次重复标识只处理一次", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.Anything).Return(nil)
		router, _, _ := newRouterFixture(notifier)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(7)).
			Return(rawMail("ab12cd34ef@temp.mail", "Dup", "x"), nil).Once()

		err := router.ProcessMessages(context.Background(), sess, []MessageID{7, 7, 7})
		require.NoError(t, err)

		sess.AssertNumberOfCalls(t, "Fetch", 1)
		notifier.AssertNumberOfCalls(t, "Notify", 1)
	})

	t.Run("取信失败上抛会话级错误", func(t *testing.T) {
		notifier := new(MockNotifier)
		router, _, _ := newRouterFixture(notifier)

		fetchErr := errors.New("connection reset")
		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).Return(nil, fetchErr)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1})
		assert.ErrorIs(t, err, fetchErr)
	})

	t.Run("上下文取消中止批次", func(t *testing.T) {
		notifier := new(MockNotifier)
		router, _, _ := newRouterFixture(notifier)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sess := new(MockSession)
		err := router.ProcessMessages(ctx, sess, []MessageID{1})
		assert.ErrorIs(t, err, context.Canceled)
		sess.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})

	t.Run("过期别名被替换后旧地址不再投递", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", "user-1", mock.Anything).Return(nil)
		router, reg, _ := newRouterFixture(notifier)

		// 重新签发，旧 local-part 立即失效
		fresh, displaced := reg.Issue("user-1")
		require.NotNil(t, displaced)

		sess := new(MockSession)
		sess.On("Fetch", mock.Anything, MessageID(1)).
			Return(rawMail("ab12cd34ef@temp.mail", "Stale", "x"), nil)
		sess.On("Fetch", mock.Anything, MessageID(2)).
			Return(rawMail(fresh.Address, "Fresh", "y"), nil)

		err := router.ProcessMessages(context.Background(), sess, []MessageID{1, 2})
		require.NoError(t, err)
		notifier.AssertNumberOfCalls(t, "Notify", 1)
	})
}
