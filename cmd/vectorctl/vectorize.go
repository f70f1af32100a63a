package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pdf-vectorize-go/internal/app"
	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/service"
)

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize [file]",
	Short: "上传本地 PDF 并同步向量化",
	Long: `上传本地 PDF 到对象存储并同步执行向量化，输出写入的记录 ID。
使用 --key 时跳过上传，直接处理对象存储中已有的文件。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		force, _ := cmd.Flags().GetBool("force")
		if key == "" && len(args) == 0 {
			return fmt.Errorf("需要提供文件路径或 --key")
		}

		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			if key == "" {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				record, err := service.NewFileService(a.Blobs, a.Repo).
					Upload(ctx, filepath.Base(args[0]), http.DetectContentType(data), data)
				if err != nil {
					return err
				}
				key = record.FileKey
				fmt.Fprintf(cmd.ErrOrStderr(), "已上传: %s\n", key)
			}

			res, err := service.NewVectorizeService(a.Processor, a.Repo, nil).
				Vectorize(ctx, model.VectorizeRequest{Key: key, ForceReload: force})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file-hash>",
	Short: "删除某个文档指纹下的全部向量记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			n, err := a.Processor.DeleteDocument(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"file_hash": args[0], "deleted": n})
		})
	},
}

func init() {
	rootCmd.AddCommand(vectorizeCmd, deleteCmd)
	vectorizeCmd.Flags().String("key", "", "对象存储中已有文件的键")
	vectorizeCmd.Flags().BoolP("force", "f", false, "忽略已有记录, 重新向量化")
}
