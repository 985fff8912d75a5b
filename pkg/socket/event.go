package socket

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventConnOpened 连接登记成功
	EventConnOpened EventType = "conn.opened"
	// EventConnClosed 连接从 Registry 移除
	EventConnClosed EventType = "conn.closed"
	// EventConnError 连接因传输错误关闭
	EventConnError EventType = "conn.error"
)

// Event 事件
type Event struct {
	Type EventType
	Key  string
	Err  error
	Time time.Time
}

// EventHandler 事件处理器，不应长时间阻塞
type EventHandler func(Event)

// EventBus 异步事件总线
// 单个 worker 按发布顺序投递，同一连接的 opened 一定先于 closed。
// 待投递事件放在无界切片里，Publish 从不阻塞，可以在持有其他锁时调用
type EventBus struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex

	pendingMu sync.Mutex
	pending   []Event
	capacity  int
	signal    chan struct{}

	stopCh        chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	closed        atomic.Bool
	droppedEvents atomic.Int64
}

// NewEventBus 创建事件总线，queueSize 是待投递切片的初始容量
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		pending:  make([]Event, 0, queueSize),
		capacity: queueSize,
		signal:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go eb.worker()
	return eb
}

func (eb *EventBus) worker() {
	defer close(eb.done)
	for {
		select {
		case <-eb.signal:
			eb.drain()
		case <-eb.stopCh:
			// 投递剩余事件后退出
			eb.drain()
			return
		}
	}
}

// drain 取出全部待投递事件并按顺序投递，直到切片为空
func (eb *EventBus) drain() {
	for {
		eb.pendingMu.Lock()
		batch := eb.pending
		if len(batch) == 0 {
			eb.pendingMu.Unlock()
			return
		}
		eb.pending = make([]Event, 0, eb.capacity)
		eb.pendingMu.Unlock()

		for _, e := range batch {
			eb.deliver(e)
		}
	}
}

func (eb *EventBus) deliver(e Event) {
	eb.mu.RLock()
	handlers := eb.handlers[e.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if recover() != nil {
					eb.droppedEvents.Add(1)
				}
			}()
			h(e)
		}()
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件，只追加到待投递切片，不等待投递
func (eb *EventBus) Publish(e Event) {
	eb.mu.RLock()
	n := len(eb.handlers[e.Type])
	eb.mu.RUnlock()
	if n == 0 {
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	eb.pendingMu.Lock()
	if eb.closed.Load() {
		eb.pendingMu.Unlock()
		eb.droppedEvents.Add(1)
		return
	}
	eb.pending = append(eb.pending, e)
	eb.pendingMu.Unlock()

	select {
	case eb.signal <- struct{}{}:
	default:
	}
}

// Pending 尚未投递的事件数量
func (eb *EventBus) Pending() int {
	eb.pendingMu.Lock()
	defer eb.pendingMu.Unlock()
	return len(eb.pending)
}

// Close 关闭事件总线，等待已入队事件投递完毕
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.pendingMu.Lock()
		eb.closed.Store(true)
		eb.pendingMu.Unlock()
		close(eb.stopCh)
	})
	<-eb.done
}

// DroppedEvents 丢弃的事件数量（关闭后发布或处理器 panic）
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
