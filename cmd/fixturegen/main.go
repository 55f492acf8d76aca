package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/sdfixture/internal/app/run"
	"github.com/John-Robertt/sdfixture/internal/config"
	"github.com/John-Robertt/sdfixture/internal/domain"
	"github.com/John-Robertt/sdfixture/internal/meta"
)

// 退出码（对外契约）。
const (
	exitOK       = 0
	exitFatal    = 1
	exitFailures = 2
	exitDiffers  = 3
)

var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 让子命令把退出码带回 execute；err 为空时不再额外打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	input      string
	output     string
	pretty     bool
	logLevel   string
}

// execute 构建命令树并运行，返回进程退出码（测试直接调用它）。
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "错误：%v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数错误（未知 flag、参数个数等）
	fmt.Fprintf(stderr, "参数错误：%v\n", err)
	return exitFatal
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixturegen -i <path> -o <dir>",
		Short: "从 AI 生成图片的元数据生成 fixture 快照",
		Long: `fixturegen 读取 PNG/JPEG/WEBP 图片（或 .txt 参数文件）里的生成参数，
为每个文件写一个 <basename>.fixture.json；失败的文件汇总到 _failures.json。

退出码：
  0  全部成功（包括没有匹配文件）
  2  部分文件抽取失败（已写 _failures.json）
  1  参数/配置/输出目录等致命错误
  3  compare 发现差异`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runBatch,
	}

	f := cmd.Flags()
	f.StringVarP(&a.input, "input", "i", "", "输入文件或目录（目录会递归扫描）")
	f.StringVarP(&a.output, "output", "o", "", "输出目录（不存在则创建）")
	f.BoolVar(&a.pretty, "pretty", false, "以 2 空格缩进输出 fixture JSON")

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "配置文件（默认读取 ./"+config.DefaultFileName+"，不存在则忽略）")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别：debug|info|warn|error（默认 info）")

	cmd.AddCommand(a.compareCmd(), a.configCmd())
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: exitFatal, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		ConfigFile: a.configFile,
		Input:      a.input,
		Output:     a.output,
		Pretty:     a.pretty,
		PrettySet:  cmd.Flags().Changed("pretty"),
		LogLevel:   a.logLevel,
	})
	if err != nil {
		// 配置没加载成功：按 --log-level 建日志器，非法值回落到 info。
		newLogger(a.stderr, a.logLevel).Error("配置错误", "error_code", config.Code(err), "error", err)
		return &exitError{code: exitFatal, err: err}
	}

	logger := newLogger(a.stderr, eff.LogLevel)
	obs := run.Observers(newLogObserver(logger), a.progressObserver())

	rr, err := run.ExecuteWithObserver(eff, meta.NewReader(logger), obs)
	if err != nil {
		logger.Error("运行中止", "run_id", rr.RunID, "error_code", run.Code(err), "error", err)
		a.emitSummary(rr)
		return &exitError{code: exitFatal, err: err}
	}

	a.emitSummary(rr)
	if len(rr.Failures) > 0 {
		return &exitError{code: exitFailures}
	}
	return nil
}

// progressObserver 只在交互终端启用；过程信息写 stderr，不污染 stdout。
func (a *app) progressObserver() run.Observer {
	if isTTY(a.stderr) {
		return newProgressUI(a.stderr)
	}
	return nil
}

// emitSummary 输出最终摘要：stdout 是 TTY 时打印一行人类可读摘要；
// 否则 stdout 只输出一个 RunReport JSON，摘要行改走 stderr。
// 两种情况下都包含候选文件数与输出目录。
func (a *app) emitSummary(rr domain.RunReport) {
	line := fmt.Sprintf("完成：candidates=%d written=%d failures=%d output=%s\n",
		rr.Candidates, len(rr.Written), len(rr.Failures), rr.Output,
	)
	if isTTY(a.stdout) {
		fmt.Fprint(a.stdout, line)
		if rr.ReportPath != "" {
			fmt.Fprintf(a.stdout, "失败汇总：%s\n", rr.ReportPath)
		}
		return
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(rr)
	fmt.Fprint(a.stderr, line)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
