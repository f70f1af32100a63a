package main

import (
	"strings"

	"github.com/spf13/cobra"

	"pdf-vectorize-go/internal/app"
	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/service"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "语义检索已向量化的文档",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		fileHash, _ := cmd.Flags().GetString("file-hash")

		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			results, err := service.NewSearchService(a.Embedder, a.Store).Search(ctx, model.SearchRequest{
				Query:    strings.Join(args, " "),
				Limit:    limit,
				FileHash: fileHash,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		})
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("limit", "n", 5, "返回结果数量")
	searchCmd.Flags().String("file-hash", "", "只在指定文档内检索")
}
