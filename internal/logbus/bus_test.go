package logbus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusRingBuffer(t *testing.T) {
	b := New(2)
	b.Log("info", "one", nil)
	b.Log("info", "two", nil)
	b.Log("info", "three", nil)

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "two", snap[0].Data.(LogData).Msg)
	assert.Equal(t, "three", snap[1].Data.(LogData).Msg)
}

func TestBusSubscribe(t *testing.T) {
	b := New(10)
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Log("warn", "hello", map[string]any{"k": 1})
	msg := <-ch
	assert.Equal(t, "log", msg.Type)
	assert.Equal(t, "hello", msg.Data.(LogData).Msg)
}

func TestWithMergesFields(t *testing.T) {
	b := New(10)
	l := With(b, map[string]any{"site": "yyg", "account": "a"})
	l.Log("info", "x", map[string]any{"account": "b", "n": 2})

	data := b.Snapshot()[0].Data.(LogData)
	assert.Equal(t, "yyg", data.Fields["site"])
	assert.Equal(t, "b", data.Fields["account"])
	assert.Equal(t, 2, data.Fields["n"])
}

func TestConsoleSinkFiltersLevel(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	b := New(10)
	b.AddSink(ConsoleSink(&out, "info"))

	b.Log("debug", "hidden", nil)
	b.Log("info", "shown", map[string]any{"b": 2, "a": 1})
	b.Log("error", "broken", nil)

	text := out.String()
	assert.NotContains(t, text, "hidden")
	assert.Contains(t, text, "INFO\t- shown a=1 b=2")
	assert.Contains(t, text, "ERROR\t- broken")
}

func TestLinesSkipsNonLog(t *testing.T) {
	b := New(10)
	b.Publish("state", map[string]any{})
	b.Log("info", "only", nil)

	lines := Lines(b.Snapshot())
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "only"))
}
