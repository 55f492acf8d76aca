package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/sdfixture/internal/compare"
)

func (a *app) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <expected-dir> <actual-dir>",
		Short: "按 fixture schema 校验并逐字段比较两个 fixture 目录（忽略 source）",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := compare.Dirs(args[0], args[1])
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			a.emitCompare(rep)
			if !rep.Equal() {
				return &exitError{code: exitDiffers}
			}
			return nil
		},
	}
}

// emitCompare 与 emitSummary 同样的约定：非 TTY 时 stdout 只输出一个 JSON。
func (a *app) emitCompare(rep compare.Report) {
	line := fmt.Sprintf("比较完成：compared=%d differences=%d\n", rep.Compared, len(rep.Differences))
	if !isTTY(a.stdout) {
		enc := json.NewEncoder(a.stdout)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(rep)
		fmt.Fprint(a.stderr, line)
		return
	}

	for _, d := range rep.Differences {
		switch d.Kind {
		case compare.KindMismatch:
			fmt.Fprintf(a.stdout, "%s %s %s: expected=%s actual=%s\n",
				d.File, d.Kind, d.Field, truncate(d.Expected, 120), truncate(d.Actual, 120),
			)
		case compare.KindInvalid:
			field := d.Field
			if field == "" {
				field = "<document>"
			}
			fmt.Fprintf(a.stdout, "%s %s(%s) %s: %s\n", d.File, d.Kind, d.Side, field, truncate(d.Detail, 160))
		default:
			fmt.Fprintf(a.stdout, "%s %s\n", d.File, d.Kind)
		}
	}
	fmt.Fprint(a.stdout, line)
}
