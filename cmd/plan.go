package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/convergerun/converge/pkg"
)

var planCmd = &cobra.Command{
	Use:   "plan [playbook]",
	Short: "Show the execution plan without touching any host",
	Long: `Expands loops, substitutes variables and prints the ordered steps the run
command would execute. Plan building fails on undefined variables, invalid
loops and unknown task types, so this doubles as playbook validation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		play, err := pkg.LoadPlaybook(args[0])
		if err != nil {
			return err
		}
		hosts, err := selectHosts()
		if err != nil {
			return err
		}
		extraVars, err := parseExtraVars(extraVarFlags)
		if err != nil {
			return err
		}

		for _, host := range hosts {
			bindings := pkg.NewBindings(play.Defaults, play.Vars, host.Vars)
			bindings.SetFacts(extraVars)
			steps, err := pkg.BuildPlan(play.Tasks, bindings, pkg.DefaultRegistry())
			if err != nil {
				return fmt.Errorf("host %s: %w", host.Name, err)
			}
			fmt.Printf("%s: %d step(s)\n", host.Name, len(steps))
			for _, step := range steps {
				line := fmt.Sprintf("  %3d. [%s] %s", step.Index+1, step.Type, step.String())
				if step.When != "" {
					line += fmt.Sprintf("  when: %s", step.When)
				}
				if len(step.Notify) > 0 {
					line += fmt.Sprintf("  notify: %s", strings.Join(step.Notify, ", "))
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVarP(&inventoryFile, "inventory", "i", "", "inventory file (defaults to localhost)")
	planCmd.Flags().StringVarP(&limitHosts, "limit", "l", "", "comma-separated host patterns to plan for")
	planCmd.Flags().StringArrayVarP(&extraVarFlags, "extra-vars", "e", nil, "extra variables as key=value (repeatable)")
	rootCmd.AddCommand(planCmd)
}
