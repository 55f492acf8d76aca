package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/sdfixture/internal/config"
	"github.com/John-Robertt/sdfixture/internal/domain"
	"github.com/John-Robertt/sdfixture/internal/fixture"
	"github.com/John-Robertt/sdfixture/internal/infra/fsx"
	"github.com/John-Robertt/sdfixture/internal/scan"
)

// Parser 是 run 层依赖的元数据解析器（meta.Reader 实现它；测试里用桩）。
type Parser = fixture.Parser

// Error 是导致整批运行中止的致命错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Code {
	case domain.ErrCodeInputNotFound:
		return fmt.Sprintf("输入路径不存在或无法读取：%s：%v", e.Path, e.Err)
	case domain.ErrCodeOutputFailed:
		return fmt.Sprintf("输出失败：%s：%v", e.Path, e.Err)
	default:
		return fmt.Sprintf("%s：%s：%v", e.Code, e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 返回致命错误的 error_code；非 *Error 返回空串。
func Code(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// Execute 是不带 Observer 的便捷入口。
func Execute(eff config.EffectiveConfig, p Parser) (domain.RunReport, error) {
	return ExecuteWithObserver(eff, p, nil)
}

// ExecuteWithObserver 跑完整批处理：解析候选 -> 准备输出目录 -> 逐个抽取并写 fixture -> 写失败汇总。
//
// 约束：
// - 单 goroutine，按候选顺序处理；每个文件打开、解析、关闭后才处理下一个
// - 单文件失败只记录 FailureEntry，不中止循环
// - 输入不存在、输出目录不可用属于致命错误：在处理任何文件之前返回（先查输入，避免留下空目录）
// - 返回 error 时 RunReport 仍然可用（已 Finalize），便于 CLI 打摘要
func ExecuteWithObserver(eff config.EffectiveConfig, p Parser, obs Observer) (domain.RunReport, error) {
	started := time.Now()
	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Input:     eff.Input,
		Output:    eff.Output,
		Pretty:    eff.Pretty,
		StartedAt: started,
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now()
		rr.Finalize()
		return rr
	}

	if obs != nil {
		obs.OnStart(rr.RunID, eff)
	}

	scanStarted := time.Now()
	paths, err := scan.ResolveInputs(eff.Input, eff.Extensions)
	if err != nil {
		return finish(), &Error{Code: domain.ErrCodeInputNotFound, Path: eff.Input, Err: err}
	}
	rr.Candidates = len(paths)
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files":      len(paths),
			"extensions": len(eff.Extensions),
		}, time.Since(scanStarted))
	}

	if err := fsx.EnsureDir(eff.Output); err != nil {
		return finish(), &Error{Code: domain.ErrCodeOutputFailed, Path: eff.Output, Err: err}
	}

	for i, abs := range paths {
		oneStarted := time.Now()
		src := sourceFor(eff, abs)

		res := fixture.ExtractAs(p, abs, src)
		if res.OK() {
			name, werr := writeFixture(eff, *res.Fixture)
			if werr != nil {
				res = domain.ExtractResult{Failure: &domain.FailureEntry{
					Source:  src,
					Message: fixture.FailurePrefix + werr.Error(),
				}}
			} else {
				rr.Written = append(rr.Written, name)
			}
		}
		if !res.OK() {
			rr.Failures = append(rr.Failures, *res.Failure)
		}

		if obs != nil {
			obs.OnItemDone(i+1, len(paths), src, res, time.Since(oneStarted))
		}
	}

	if len(rr.Failures) > 0 {
		b, err := fixture.EncodeFailures(rr.Failures)
		if err == nil {
			err = fsx.WriteFileAtomic(eff.Output, domain.FailureReportName, b)
		}
		if err != nil {
			return finish(), &Error{Code: domain.ErrCodeOutputFailed, Path: filepath.Join(eff.Output, domain.FailureReportName), Err: err}
		}
		rr.ReportPath = filepath.Join(eff.Output, domain.FailureReportName)
	}

	out := finish()
	if obs != nil {
		obs.OnPhaseDone("done", map[string]any{
			"files":    out.Candidates,
			"written":  len(out.Written),
			"failures": len(out.Failures),
		}, out.FinishedAt.Sub(out.StartedAt))
	}
	return out, nil
}

func writeFixture(eff config.EffectiveConfig, f domain.Fixture) (string, error) {
	b, err := fixture.Encode(f, eff.Pretty)
	if err != nil {
		return "", err
	}
	name := fixture.FileName(f.Source)
	if err := fsx.WriteFileAtomic(eff.Output, name, b); err != nil {
		return "", err
	}
	return name, nil
}

// sourceFor 把候选的绝对路径还原成“用户给出的路径 + 相对部分”，写进 source 字段。
// 用户没有给出原始路径（例如只来自配置文件）时退回绝对路径。
func sourceFor(eff config.EffectiveConfig, abs string) string {
	if eff.InputArg == "" {
		return abs
	}
	if abs == eff.Input {
		return eff.InputArg
	}
	rel, err := filepath.Rel(eff.Input, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return abs
	}
	return filepath.Join(eff.InputArg, rel)
}
