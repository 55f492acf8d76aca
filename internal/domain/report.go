package domain

import (
	"encoding/json"
	"time"
)

const (
	OutcomeSuccess        = "success"
	OutcomePartialFailure = "partial_failure"
)

const (
	ErrCodeConfigInvalid       = "config_invalid"
	ErrCodeConfigMissingInput  = "config_missing_input"
	ErrCodeConfigMissingOutput = "config_missing_output"
	ErrCodeInputNotFound       = "input_not_found"
	ErrCodeOutputFailed        = "output_failed"
)

const (
	// FixtureSuffix 是每个 fixture 文件名的固定后缀。
	FixtureSuffix = ".fixture.json"
	// FailureReportName 是失败汇总文件名（位于输出目录下，不嵌套）。
	FailureReportName = "_failures.json"
)

// RunReport 描述一次批处理运行的结果（stdout 摘要与测试断言都基于它）。
type RunReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Output string `json:"output"`
	Pretty bool   `json:"pretty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Candidates int            `json:"candidates"`
	Written    []string       `json:"written"`
	Failures   []FailureEntry `json:"failures"`

	// ReportPath 仅在存在失败时非空（_failures.json 的路径）。
	ReportPath string `json:"report_path"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC
// 2) nil 切片补成空切片（JSON 输出 [] 而不是 null）
//
// Failures 保持候选文件的处理顺序（候选列表本身已排序），这里不再重排。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Written == nil {
		r.Written = []string{}
	}
	if r.Failures == nil {
		r.Failures = []FailureEntry{}
	}
}

// Outcome 只由是否存在 FailureEntry 决定。
func (r RunReport) Outcome() string {
	if len(r.Failures) > 0 {
		return OutcomePartialFailure
	}
	return OutcomeSuccess
}

func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(struct {
		Alias
		Outcome string `json:"outcome"`
	}{Alias: Alias(r), Outcome: r.Outcome()})
}
