package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdf-vectorize-go/internal/app"
	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/pkg/log"
)

var cfgFile string

// cfg 在 initConfig 中加载，子命令直接使用。
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "vectorctl",
	Short:        "PDF 向量化命令行工具",
	SilenceUsage: true,
}

// Execute 执行根命令，出错时以非零状态退出。Ctrl-C 会取消正在进行的向量化。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认只读取环境变量)")
}

func initConfig() {
	c, err := config.Load(cfgFile)
	cobra.CheckErr(err)
	cfg = c
	logCfg := cfg.Log
	logCfg.Format = "console"
	cobra.CheckErr(log.Init(logCfg))
}

// withApp 装配组件并在 fn 返回后释放。
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
