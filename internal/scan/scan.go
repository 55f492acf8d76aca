package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions 是目录输入时接受的扩展名（小写，不带 '.'）。
var DefaultExtensions = []string{"png", "jpg", "jpeg", "webp", "txt"}

// ResolveInputs 把输入路径展开为候选文件列表。
//
// 规则（硬约束）：
// - input 是普通文件：候选集就是它本身（不看扩展名）
// - input 是目录：递归收集扩展名（大小写不敏感）命中 exts 的普通文件，按路径字典序排序
// - 目录下没有命中文件：返回空切片，不是错误
// - 指向普通文件的符号链接算候选；指向目录的符号链接不展开（不会因环路无限递归）
//
// 注意：扫描阶段只做 stat，不读文件内容。
func ResolveInputs(input string, exts []string) ([]string, error) {
	input = filepath.Clean(strings.TrimSpace(input))

	fi, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if fi.Mode().IsRegular() {
		return []string{input}, nil
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("输入既不是普通文件也不是目录：%q（%s）", input, fi.Mode().Type())
	}

	// WalkDir 对根用 Lstat：输入目录本身是符号链接时要先解析，结果再映射回用户给出的路径。
	root, err := filepath.EvalSymlinks(input)
	if err != nil {
		return nil, err
	}

	allowed := extSet(exts)
	files := make([]string, 0, 128)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name())), ".")
		if _, ok := allowed[ext]; !ok {
			return nil
		}
		if !isRegularFile(path, d) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.Join(input, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统的遍历顺序差异。
	sort.Strings(files)
	return files, nil
}

// isRegularFile 判断条目是否为普通文件；符号链接按目标判断，悬空链接与设备文件跳过。
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// IsSidecar 判断路径是否按“纯文本 sidecar”模式解析（.txt，大小写不敏感）。
func IsSidecar(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func extSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e == "" {
			continue
		}
		m[e] = struct{}{}
	}
	return m
}
