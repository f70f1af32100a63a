package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pdf-vectorize-go/pkg/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "签发调用 API 的服务令牌",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes, _ := cmd.Flags().GetStringSlice("scopes")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret 未配置")
		}
		t, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer).GenerateToken(args[0], scopes, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringSlice("scopes", nil, "授权范围, 例如 files,vectorize,search (为空表示全部)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "有效期, 0 表示永不过期")
}
