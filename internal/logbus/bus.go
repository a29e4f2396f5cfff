package logbus

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger 是各组件依赖的日志接口，进程启动时创建一次并逐层传入。
type Logger interface {
	Log(level, message string, fields map[string]any)
}

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink 在 Publish 时被同步调用，用于控制台输出等。
type Sink func(Message)

type Bus struct {
	mu     sync.RWMutex
	buf    []Message
	cap    int
	subs   map[chan Message]struct{}
	sinks  []Sink
	closed bool
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		cap:  capacity,
		buf:  make([]Message, 0, capacity),
		subs: make(map[chan Message]struct{}),
	}
}

func (b *Bus) AddSink(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.buf = nil
}

func (b *Bus) Snapshot() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.buf))
	copy(out, b.buf)
	return out
}

// Since 返回时间戳（毫秒）不早于 sinceMs 的日志，用于拼接单次运行的推送内容。
func (b *Bus) Since(sinceMs int64) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Message
	for _, m := range b.buf {
		if m.Time >= sinceMs {
			out = append(out, m)
		}
	}
	return out
}

func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if b.subs != nil {
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(typ string, data any) {
	msg := Message{
		Type: typ,
		Time: time.Now().UnixMilli(),
		Data: data,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.buf) < b.cap {
		b.buf = append(b.buf, msg)
	} else if b.cap > 0 {
		copy(b.buf, b.buf[1:])
		b.buf[b.cap-1] = msg
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	sinks := b.sinks
	b.mu.Unlock()

	for _, s := range sinks {
		s(msg)
	}
}

func (b *Bus) Log(level, message string, fields map[string]any) {
	b.Publish("log", LogData{Level: level, Msg: message, Fields: fields})
}

// FormatLine 把一条日志渲染成单行文本：时间 - 级别 - 消息 k=v...
func FormatLine(msg Message) string {
	data, ok := msg.Data.(LogData)
	if !ok {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(time.UnixMilli(msg.Time).Format("2006-01-02 15:04:05"))
	sb.WriteString(" - ")
	sb.WriteString(strings.ToUpper(data.Level))
	sb.WriteString("\t- ")
	sb.WriteString(data.Msg)
	if len(data.Fields) > 0 {
		keys := make([]string, 0, len(data.Fields))
		for k := range data.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, data.Fields[k])
		}
	}
	return sb.String()
}

// Lines 把日志渲染为文本行，跳过非 log 类型的消息。
func Lines(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Type != "log" {
			continue
		}
		if line := FormatLine(m); line != "" {
			out = append(out, line)
		}
	}
	return out
}
