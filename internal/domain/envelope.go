package domain

// InboundEnvelope 表示一封解析后的入站邮件。
// 仅在单次处理批次内存活，不做持久化。
type InboundEnvelope struct {
	From        string // 发件人（解码后的 From 头，缺失时为 "Unknown"）
	Subject     string // 主题（解码后，缺失时为 "(no subject)"）
	ToLocalPart string // 收件地址 @ 之前的部分，小写
	Body        string // 首个 text/plain 部分，已截断到转发上限
}
