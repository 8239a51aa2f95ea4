package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw965/texplore/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "texplore",
		Short:         "Real-time model-based reinforcement learning with a parallel UCT planner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// 未知のフラグや型の合わない値も設定エラーとして扱う
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	})
	root.AddCommand(newRunCmd(), newPolicyCmd())
	return root
}
