// Package imapx 基于 emersion/go-imap v2 实现邮箱协作方接口。
package imapx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/mailer"
)

// Options IMAP 连接参数
type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Mailbox            string
	UseTLS             bool
	InsecureSkipVerify bool
}

// Dialer 按需建立 IMAP 会话，实现 mailer.Dialer。
type Dialer struct {
	opts Options
	log  *zap.Logger
}

// NewDialer 创建 IMAP 拨号器。
func NewDialer(opts Options, log *zap.Logger) (*Dialer, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	return &Dialer{opts: opts, log: log}, nil
}

// Connect 建立连接、登录并选定邮箱。
func (d *Dialer) Connect(ctx context.Context) (mailer.Session, error) {
	address := net.JoinHostPort(d.opts.Host, strconv.Itoa(d.opts.Port))

	// 服务器的新邮件通知通过单边数据回调送达，收敛成一个信号通道
	activity := make(chan struct{}, 1)
	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				select {
				case activity <- struct{}{}:
				default:
				}
			},
		},
	}

	var (
		client *imapclient.Client
		err    error
	)
	if d.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         d.opts.Host,
			InsecureSkipVerify: d.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(d.opts.Username, d.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	if _, err := client.Select(d.opts.Mailbox, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select mailbox %s: %w", d.opts.Mailbox, err)
	}

	// 进程关停时强制断开，打断阻塞中的协议命令
	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	d.log.Debug("imap connection established",
		zap.String("address", address),
		zap.String("user", d.opts.Username),
		zap.String("mailbox", d.opts.Mailbox),
		zap.Bool("tls", d.opts.UseTLS),
	)

	return &session{
		client:    client,
		activity:  activity,
		stopClose: stopClose,
		log:       d.log,
	}, nil
}

// session 包装一条已选定邮箱的 IMAP 连接。
type session struct {
	client    *imapclient.Client
	activity  chan struct{}
	stopClose func() bool
	log       *zap.Logger
}

// AwaitActivity 进入 IDLE 等待服务器信号，超时或取消时主动结束 IDLE。
func (s *session) AwaitActivity(ctx context.Context, timeout time.Duration) (bool, error) {
	idleCmd, err := s.client.Idle()
	if err != nil {
		return false, fmt.Errorf("start idle: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	signaled := false
	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		_ = idleCmd.Wait()
		return false, ctx.Err()
	case <-s.activity:
		signaled = true
	case <-timer.C:
	}

	if err := idleCmd.Close(); err != nil {
		return signaled, fmt.Errorf("stop idle: %w", err)
	}
	if err := idleCmd.Wait(); err != nil {
		return signaled, fmt.Errorf("idle terminated: %w", err)
	}
	return signaled, nil
}

// ListUnseen 返回未读邮件的 UID 列表。
func (s *session) ListUnseen(ctx context.Context) ([]mailer.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]mailer.MessageID, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, mailer.MessageID(uid))
	}
	return ids, nil
}

// Fetch 取回一封邮件的完整原文。
// 非 PEEK 的 BODY[] 读取会让服务器给消息打上 \Seen 标记，
// 因此下个未读批次不再包含它。
func (s *session) Fetch(ctx context.Context, id mailer.MessageID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{}
	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	}

	msgs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(id)), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch uid %d: %w", id, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("fetch uid %d: no data returned", id)
	}

	raw := msgs[0].FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("fetch uid %d: body section missing", id)
	}
	return raw, nil
}

// Close 注销并断开连接。
func (s *session) Close() error {
	s.stopClose()
	if err := s.client.Logout().Wait(); err != nil {
		s.log.Debug("imap logout failed", zap.Error(err))
	}
	return s.client.Close()
}
