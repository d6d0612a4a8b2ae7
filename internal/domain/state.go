package domain

// State 是注册表与统计日志的完整持久化状态。
// 存储层整体读写该快照，进程重启后据此恢复。
type State struct {
	Aliases map[string]Alias `json:"aliases"` // ownerID -> 当前有效别名
	Stats   *StatsLog        `json:"stats"`
}

// NewState 返回空状态。
func NewState() *State {
	return &State{
		Aliases: make(map[string]Alias),
		Stats:   &StatsLog{},
	}
}
