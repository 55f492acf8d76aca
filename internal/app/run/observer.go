package run

import (
	"time"

	"github.com/John-Robertt/sdfixture/internal/config"
	"github.com/John-Robertt/sdfixture/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（stdout 只留给最终摘要）。
// - 事件按顺序从单个 goroutine 发出；实现若自己起 goroutine，需要自行加锁。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（早于创建输出目录）。
	OnStart(runID string, eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用："scan"（候选解析完成）与 "done"（整批结束）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在单个文件处理完成时调用；res.Failure 非空表示该文件失败。
	OnItemDone(idx, total int, source string, res domain.ExtractResult, dur time.Duration)
}

// Observers 把多个 Observer 合并成一个，按给定顺序转发事件；nil 会被跳过。
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) OnStart(runID string, eff config.EffectiveConfig) {
	for _, o := range m {
		o.OnStart(runID, eff)
	}
}

func (m multiObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	for _, o := range m {
		o.OnPhaseDone(name, fields, dur)
	}
}

func (m multiObserver) OnItemDone(idx, total int, source string, res domain.ExtractResult, dur time.Duration) {
	for _, o := range m {
		o.OnItemDone(idx, total, source, res, dur)
	}
}
