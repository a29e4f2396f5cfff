package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cron 是解析后的 5 段表达式：分 时 日 月 周。
type Cron struct {
	minutes []int
	hours   []int
	days    []int
	months  []int
	weekday []int
	anyDay  bool
	anyWeek bool
}

func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron 表达式需要 5 段，实际 %d 段: %q", len(fields), expr)
	}
	bounds := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 6},
	}
	sets := make([][]int, 5)
	for i, s := range bounds {
		vals, err := parseField(fields[i], s.min, s.max)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		sets[i] = vals
	}
	return &Cron{
		minutes: sets[0],
		hours:   sets[1],
		days:    sets[2],
		months:  sets[3],
		weekday: sets[4],
		anyDay:  fields[2] == "*",
		anyWeek: fields[4] == "*",
	}, nil
}

// parseField 支持 *、*/n、n、n-m、n-m/s 以及逗号列表。
func parseField(field string, min, max int) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return nil, fmt.Errorf("empty item in %q", field)
		}
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid step %q", part)
			}
			step = n
			part = base
		}
		lo, hi := min, max
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("invalid range start %q", a)
			}
			if hi, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", part)
			}
			lo, hi = v, v
		}
		if lo < min || hi > max || lo > hi {
			return nil, fmt.Errorf("%d-%d out of range %d-%d", lo, hi, min, max)
		}
		for v := lo; v <= hi; v += step {
			seen[v] = true
		}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func has(vals []int, v int) bool {
	i := sort.SearchInts(vals, v)
	return i < len(vals) && vals[i] == v
}

// Next 返回 after 之后第一个匹配的整分钟；找不到时返回零值。
func (c *Cron) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)
	for t.Before(limit) {
		if !has(c.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(c.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !has(c.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// 日和周都被限定时，任一匹配即可。
func (c *Cron) dayMatches(t time.Time) bool {
	dom := has(c.days, t.Day())
	dow := has(c.weekday, int(t.Weekday()))
	switch {
	case c.anyDay && c.anyWeek:
		return true
	case c.anyDay:
		return dow
	case c.anyWeek:
		return dom
	default:
		return dom || dow
	}
}
