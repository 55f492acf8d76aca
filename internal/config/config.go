package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/sdfixture/internal/domain"
	"github.com/John-Robertt/sdfixture/internal/scan"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingInput 表示 CLI 与配置文件都没有给出 input。
	ErrCodeMissingInput = domain.ErrCodeConfigMissingInput
	// ErrCodeMissingOutput 表示 CLI 与配置文件都没有给出 output。
	ErrCodeMissingOutput = domain.ErrCodeConfigMissingOutput
)

const (
	// DefaultFileName 是未显式指定 --config 时，在 cwd 下查找的配置文件名。
	DefaultFileName = "fixturegen.yaml"
	// EnvPrefix 是环境变量前缀，例如 FIXTUREGEN_LOG_LEVEL=debug。
	EnvPrefix = "FIXTUREGEN"
	// DefaultLogLevel 是日志级别的内置默认值。
	DefaultLogLevel = "info"
)

// CLIArgs 保留“是否显式指定”的信息，保证 --pretty=false 能覆盖配置文件里的 pretty: true。
type CLIArgs struct {
	ConfigFile string

	Input  string
	Output string

	Pretty    bool
	PrettySet bool

	LogLevel string
}

// FileConfig 对应 fixturegen.yaml 的结构。
type FileConfig struct {
	Input      string   `mapstructure:"input" yaml:"input"`
	Output     string   `mapstructure:"output" yaml:"output"`
	Pretty     bool     `mapstructure:"pretty" yaml:"pretty"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	LogLevel   string   `mapstructure:"log_level" yaml:"log_level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Input  string
	Output string
	Pretty bool

	// InputArg 是用户给出的输入路径（只做 Clean，不转绝对路径），用于 fixture 的 source 字段。
	InputArg string

	Extensions []string
	LogLevel   string

	// ConfigFile 是实际读取到的配置文件路径；没有读取任何文件时为空。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingInput:
		return fmt.Sprintf("%s：缺少输入路径（-i/--input 或配置项 input）", e.Code)
	case ErrCodeMissingOutput:
		return fmt.Sprintf("%s：缺少输出目录（-o/--output 或配置项 output）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件与环境变量，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须能读取该文件
// 2) 否则尝试读取 <cwd>/fixturegen.yaml（可选，不存在不报错）
//
// 覆盖优先级（固定）：
// - input/output/log_level：CLI > 环境变量 > 配置文件 > 默认
// - pretty：CLI --pretty/--pretty=false > 环境变量 > 配置文件 > 默认 false
// - extensions：环境变量 > 配置文件 > 默认（CLI 不暴露）
//
// 相对路径一律以 cwd 为基准转成绝对路径。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := viper.New()
	v.SetDefault("pretty", false)
	v.SetDefault("extensions", scan.DefaultExtensions)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, k := range []string{"input", "output", "pretty", "extensions", "log_level"} {
		_ = v.BindEnv(k)
	}

	cfgPath := ""
	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		candidate := filepath.Join(cwdAbs, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			cfgPath = candidate
			v.SetConfigFile(cfgPath)
			if err := v.ReadInConfig(); err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
			}
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	// 环境变量里的 extensions 是逗号分隔字符串，viper 不会自动拆。
	if len(fc.Extensions) == 1 && strings.Contains(fc.Extensions[0], ",") {
		fc.Extensions = strings.Split(fc.Extensions[0], ",")
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	input := fc.Input
	if strings.TrimSpace(cli.Input) != "" {
		input = cli.Input
	}
	if strings.TrimSpace(input) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: cfgPath}
	}

	output := fc.Output
	if strings.TrimSpace(cli.Output) != "" {
		output = cli.Output
	}
	if strings.TrimSpace(output) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingOutput, Path: cfgPath}
	}

	pretty := fc.Pretty
	if cli.PrettySet {
		pretty = cli.Pretty
	}

	level := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	if strings.TrimSpace(cli.LogLevel) != "" {
		level = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	if level == "" {
		level = DefaultLogLevel
	}
	if err := validateLogLevel(level); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	exts, err := normalizeExtensions(fc.Extensions)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return EffectiveConfig{
		Input:      absCleanFrom(cwdAbs, input),
		Output:     absCleanFrom(cwdAbs, output),
		Pretty:     pretty,
		InputArg:   filepath.Clean(strings.TrimSpace(input)),
		Extensions: exts,
		LogLevel:   level,
		ConfigFile: cfgPath,
	}, nil
}

func validateLogLevel(l string) error {
	switch l {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log_level 只能是 debug|info|warn|error，实际是 %q", l)
	}
}

func normalizeExtensions(in []string) ([]string, error) {
	if len(in) == 0 {
		return append([]string(nil), scan.DefaultExtensions...), nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e == "" {
			continue
		}
		if strings.ContainsAny(e, `/\`) {
			return nil, fmt.Errorf("extensions 含非法值：%q", e)
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("extensions 不能为空")
	}
	return out, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// WriteDefault 把默认配置写到 path（已存在则报错，避免覆盖用户配置）。
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("配置文件已存在：%q", path)
	}
	fc := FileConfig{
		Input:      "images",
		Output:     "fixtures",
		Pretty:     false,
		Extensions: append([]string(nil), scan.DefaultExtensions...),
		LogLevel:   DefaultLogLevel,
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("序列化默认配置失败：%w", err)
	}
	header := []byte(`# fixturegen 配置
# CLI 参数优先于环境变量（FIXTUREGEN_*），环境变量优先于本文件。

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
