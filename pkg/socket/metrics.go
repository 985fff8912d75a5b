package socket

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)

	// 消息指标
	IncrementMessageCount(tag string)
	RecordMessageLatency(tag string, d time.Duration)
	IncrementMessageErrors(tag string)
	IncrementUnhandledMessages()

	// 性能指标
	RecordBroadcastLatency(d time.Duration)
	IncrementDroppedMessages(reason string)

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
	IncrementInvalidMessages()
}

// 丢弃原因
const (
	DropQueueFull   = "queue_full"
	DropRateLimited = "rate_limited"
	DropClosed      = "closed"
)

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (NoopMetrics) IncrementConnections()                         {}
func (NoopMetrics) DecrementConnections()                         {}
func (NoopMetrics) SetConnectionCount(int)                        {}
func (NoopMetrics) IncrementMessageCount(string)                  {}
func (NoopMetrics) RecordMessageLatency(string, time.Duration)    {}
func (NoopMetrics) IncrementMessageErrors(string)                 {}
func (NoopMetrics) IncrementUnhandledMessages()                   {}
func (NoopMetrics) RecordBroadcastLatency(time.Duration)          {}
func (NoopMetrics) IncrementDroppedMessages(string)               {}
func (NoopMetrics) IncrementReadErrors()                          {}
func (NoopMetrics) IncrementWriteErrors()                         {}
func (NoopMetrics) IncrementInvalidMessages()                     {}
