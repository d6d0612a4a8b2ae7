package mailer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/monitoring"
)

// State 监督器状态机的状态。
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateIdleWait     State = "idle_wait"
	StateProcessing   State = "processing"
)

// Supervisor 维护唯一一条邮箱会话并驱动邮件路由。
//
// 状态机: DISCONNECTED -> CONNECTING -> IDLE_WAIT <-> PROCESSING，
// 任何协议错误都回到 DISCONNECTED，等待固定退避间隔后重连。
// 故障多为瞬时网络或凭据问题，所以不做指数退避。
// 邮箱协议错误永远不会穿透监督器终止进程。
type Supervisor struct {
	dialer  Dialer
	router  *Router
	metrics *monitoring.Metrics
	log     *zap.Logger

	backoff     time.Duration
	idleTimeout time.Duration

	mu    sync.Mutex
	state State
}

// SupervisorOptions Supervisor 依赖项。Metrics 可为 nil。
type SupervisorOptions struct {
	Dialer      Dialer
	Router      *Router
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
	Backoff     time.Duration // 重连退避间隔，默认 10s
	IdleTimeout time.Duration // IDLE 等待上限，默认 4m
}

// NewSupervisor 创建邮箱连接监督器。
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.Backoff <= 0 {
		opts.Backoff = 10 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 4 * time.Minute
	}
	return &Supervisor{
		dialer:      opts.Dialer,
		router:      opts.Router,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		backoff:     opts.Backoff,
		idleTimeout: opts.IdleTimeout,
		state:       StateDisconnected,
	}
}

// State 返回当前状态，供健康检查使用。
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected 判断会话是否已建立。
func (s *Supervisor) Connected() bool {
	switch s.State() {
	case StateIdleWait, StateProcessing:
		return true
	}
	return false
}

// Run 运行连接循环直到 ctx 取消。
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		if s.metrics != nil {
			s.metrics.IMAPReconnects.Inc()
		}

		sess, err := s.dialer.Connect(ctx)
		if err != nil {
			s.log.Warn("imap connect failed", zap.Error(err))
			if err := s.disconnect(ctx, nil); err != nil {
				return err
			}
			continue
		}
		s.log.Info("imap connected, entering idle")
		if s.metrics != nil {
			s.metrics.IMAPConnected.Set(1)
		}

		err = s.serve(ctx, sess)
		if ctx.Err() != nil {
			_ = sess.Close()
			s.setState(StateDisconnected)
			return ctx.Err()
		}
		s.log.Warn("imap session lost", zap.Error(err))
		if err := s.disconnect(ctx, sess); err != nil {
			return err
		}
	}
}

// serve 在一条会话上循环 IDLE_WAIT -> PROCESSING，出错即返回。
func (s *Supervisor) serve(ctx context.Context, sess Session) error {
	for {
		s.setState(StateIdleWait)
		signaled, err := sess.AwaitActivity(ctx, s.idleTimeout)
		if err != nil {
			return err
		}

		// 超时也顺便轮询一次未读，防止错过的信号造成邮件滞留
		s.setState(StateProcessing)
		ids, err := sess.ListUnseen(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			continue
		}

		s.log.Debug("processing unseen batch",
			zap.Int("count", len(ids)),
			zap.Bool("signaled", signaled),
		)
		if err := s.router.ProcessMessages(ctx, sess, ids); err != nil {
			return err
		}
	}
}

// disconnect 记录断开状态并等待固定退避间隔，可被 ctx 打断。
func (s *Supervisor) disconnect(ctx context.Context, sess Session) error {
	if sess != nil {
		_ = sess.Close()
	}
	s.setState(StateDisconnected)
	if s.metrics != nil {
		s.metrics.IMAPConnected.Set(0)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.backoff):
		return nil
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
