package logbus

import (
	"io"

	"github.com/fatih/color"
)

type scoped struct {
	parent Logger
	fields map[string]any
}

// With 返回一个附带固定字段（如 site、account）的 Logger。
func With(parent Logger, fields map[string]any) Logger {
	if parent == nil {
		parent = Nop()
	}
	return &scoped{parent: parent, fields: fields}
}

func (s *scoped) Log(level, message string, fields map[string]any) {
	merged := make(map[string]any, len(s.fields)+len(fields))
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	s.parent.Log(level, message, merged)
}

type nop struct{}

func (nop) Log(string, string, map[string]any) {}

func Nop() Logger { return nop{} }

// ConsoleSink 把日志按级别着色写到 w。
func ConsoleSink(w io.Writer, minLevel string) Sink {
	min := levelRank(minLevel)
	return func(msg Message) {
		data, ok := msg.Data.(LogData)
		if !ok || levelRank(data.Level) < min {
			return
		}
		line := FormatLine(msg)
		switch data.Level {
		case "error":
			color.New(color.FgRed).Fprintln(w, line)
		case "warn":
			color.New(color.FgYellow).Fprintln(w, line)
		case "debug":
			color.New(color.FgHiBlack).Fprintln(w, line)
		default:
			_, _ = io.WriteString(w, line+"\n")
		}
	}
}

func levelRank(level string) int {
	switch level {
	case "debug":
		return 0
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}
