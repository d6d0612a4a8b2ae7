package registry

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

const aliasAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Registry 维护订阅者到当前有效别名的映射。
//
// 每个订阅者同一时刻最多持有一个别名，重新签发会原子替换旧别名。
// 所有变更在内部互斥下执行，并在每次成功变更后把快照整体写入存储，
// 持久化失败只记日志不回滚——崩溃最多丢失最近一次变更。
type Registry struct {
	mu          sync.Mutex
	aliases     map[string]domain.Alias // ownerID -> alias
	byLocalPart map[string]string       // 小写 local-part -> ownerID，保证 O(1) 解析

	domain       string
	localPartLen int
	random       *rand.Rand
	store        Persister
	log          *zap.Logger
}

// Persister 是注册表需要的最小持久化接口。
type Persister interface {
	SaveAliases(aliases map[string]domain.Alias) error
}

// New 创建别名注册表。store 可为 nil（不持久化，用于测试）。
func New(aliasDomain string, localPartLen int, store Persister, log *zap.Logger) *Registry {
	return &Registry{
		aliases:      make(map[string]domain.Alias),
		byLocalPart:  make(map[string]string),
		domain:       strings.ToLower(aliasDomain),
		localPartLen: localPartLen,
		random:       rand.New(rand.NewSource(time.Now().UnixNano())),
		store:        store,
		log:          log,
	}
}

// Restore 从持久化快照恢复别名集合，只在启动时调用一次。
func (r *Registry) Restore(aliases map[string]domain.Alias) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for owner, alias := range aliases {
		r.aliases[owner] = alias
		r.byLocalPart[alias.LocalPart()] = owner
	}
}

// Issue 为订阅者签发一个新别名。
//
// 若订阅者已有别名，旧别名被原子替换并作为第二个返回值给出，
// 供调用方通知原持有者；否则第二个返回值为 nil。
// 随机 local-part 与存量别名碰撞的概率在目标规模下可忽略，
// 这里仍做一次重掷兜底。
func (r *Registry) Issue(ownerID string) (domain.Alias, *domain.Alias) {
	r.mu.Lock()

	local := r.randomLocalPart()
	if _, taken := r.byLocalPart[local]; taken {
		local = r.randomLocalPart()
	}

	alias := domain.Alias{
		OwnerID:   ownerID,
		Address:   local + "@" + r.domain,
		CreatedAt: time.Now().UTC(),
	}

	var displaced *domain.Alias
	if old, ok := r.aliases[ownerID]; ok {
		displaced = &old
		delete(r.byLocalPart, old.LocalPart())
	}

	r.aliases[ownerID] = alias
	r.byLocalPart[local] = ownerID
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(snapshot)
	return alias, displaced
}

// ResolveLocalPart 按 local-part 反查订阅者，匹配不区分大小写且必须完全相等。
func (r *Registry) ResolveLocalPart(localPart string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byLocalPart[strings.ToLower(localPart)]
	return owner, ok
}

// ActiveSince 返回签发时间晚于 since 的别名数量。
func (r *Registry) ActiveSince(since time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, alias := range r.aliases {
		if alias.CreatedAt.After(since) {
			count++
		}
	}
	return count
}

// Sweep 原子移除所有存活超过 ttl 的别名并返回它们。
// 与 Issue 的替换互斥：同一别名要么被替换、要么被清理，不会出现中间态。
func (r *Registry) Sweep(now time.Time, ttl time.Duration) []domain.Alias {
	r.mu.Lock()

	var expired []domain.Alias
	for owner, alias := range r.aliases {
		if alias.Expired(now, ttl) {
			expired = append(expired, alias)
			delete(r.aliases, owner)
			delete(r.byLocalPart, alias.LocalPart())
		}
	}

	var snapshot map[string]domain.Alias
	if len(expired) > 0 {
		snapshot = r.snapshotLocked()
	}
	r.mu.Unlock()

	if snapshot != nil {
		r.persist(snapshot)
	}
	return expired
}

// Snapshot 返回当前别名集合的拷贝。
func (r *Registry) Snapshot() map[string]domain.Alias {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() map[string]domain.Alias {
	out := make(map[string]domain.Alias, len(r.aliases))
	for owner, alias := range r.aliases {
		out[owner] = alias
	}
	return out
}

// persist 在锁外写出快照，失败只记日志。
func (r *Registry) persist(snapshot map[string]domain.Alias) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveAliases(snapshot); err != nil {
		r.log.Warn("failed to persist aliases", zap.Error(err), zap.Int("count", len(snapshot)))
	}
}

func (r *Registry) randomLocalPart() string {
	b := make([]byte, r.localPartLen)
	for i := range b {
		b[i] = aliasAlphabet[r.random.Intn(len(aliasAlphabet))]
	}
	return string(b)
}
