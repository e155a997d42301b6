package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convergerun/converge/pkg"
)

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List the registered task types",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range pkg.DefaultRegistry().Types() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handlersCmd)
}
