package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/sdfixture/internal/app/run"
	"github.com/John-Robertt/sdfixture/internal/config"
	"github.com/John-Robertt/sdfixture/internal/domain"
)

var (
	_ run.Observer = (*progressUI)(nil)
	_ run.Observer = (*logObserver)(nil)
)

// progressUI 是交互终端下的进度输出：每个文件一行，长时间没有进展时补一行 keepalive。
//
// 事件来自 run 的单个 goroutine，但 keepalive ticker 在另一个 goroutine 里，所以仍需加锁。
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(runID string, eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] fixturegen run %s\n", now.Format("15:04:05"), runID)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	fmt.Fprintf(p.w, "  output: %s\n", eff.Output)
	fmt.Fprintf(p.w, "  pretty: %s\n", onOff(eff.Pretty))
	fmt.Fprintf(p.w, "  extensions: %s\n", strings.Join(eff.Extensions, ","))
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.total = intField(fields, "files")
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n\n", p.total, formatShortDuration(dur))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "done":
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "\n结束: files=%d written=%d failures=%d elapsed=%s\n",
			intField(fields, "files"), intField(fields, "written"), intField(fields, "failures"), formatElapsed(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, source string, res domain.ExtractResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	if res.OK() {
		p.ok++
		fx := res.Fixture
		tool := fx.Tool
		if tool == "" {
			tool = "-"
		}
		fmt.Fprintf(p.w, "[%d/%d] %s OK %s tool=%s (%s)\n",
			idx, total, source, fx.Status, truncate(tool, 40), formatShortDuration(dur),
		)
	} else {
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s (%s)\n",
			idx, total, source, truncate(res.Failure.Message, 160), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done < p.total && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

// logObserver 把运行事件写成结构化日志（每条都带 run_id）。
type logObserver struct {
	log *slog.Logger
}

func newLogObserver(l *slog.Logger) *logObserver {
	return &logObserver{log: l}
}

func (o *logObserver) OnStart(runID string, eff config.EffectiveConfig) {
	o.log = o.log.With("run_id", runID)
	o.log.Info("开始运行",
		"input", eff.Input,
		"output", eff.Output,
		"pretty", eff.Pretty,
		"extensions", eff.Extensions,
		"config", eff.ConfigFile,
	)
}

func (o *logObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	args := []any{"phase", name, "dur", dur}
	for _, k := range []string{"files", "written", "failures"} {
		if v, ok := fields[k]; ok {
			args = append(args, k, v)
		}
	}
	o.log.Info("阶段完成", args...)
}

func (o *logObserver) OnItemDone(idx, total int, source string, res domain.ExtractResult, dur time.Duration) {
	if !res.OK() {
		o.log.Warn("抽取失败", "idx", idx, "total", total, "source", source, "message", res.Failure.Message)
		return
	}
	o.log.Debug("已写入 fixture",
		"idx", idx,
		"total", total,
		"source", source,
		"status", res.Fixture.Status,
		"tool", res.Fixture.Tool,
		"dur", dur,
	)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// truncate 按 rune 截断，避免把中文切成半个字符。
func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if max <= 0 || len(r) <= max {
		return string(r)
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
