package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/sdfixture/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "配置文件相关命令",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "写一个默认配置文件（默认 ./" + config.DefaultFileName + "，已存在则报错）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			if err := config.WriteDefault(abs); err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			fmt.Fprintf(a.stdout, "已写入：%s\n", abs)
			return nil
		},
	})
	return cmd
}
