package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/convergerun/converge/pkg"
	"github.com/convergerun/converge/pkg/common"
	"github.com/convergerun/converge/pkg/runtime"
)

var (
	inventoryFile string
	limitHosts    string
	checkMode     bool
	extraVarFlags []string
)

var runCmd = &cobra.Command{
	Use:   "run [playbook]",
	Short: "Execute a playbook against the inventory",
	Long: `Builds the execution plan for each selected host and converges the host
to the desired state. Hosts run in parallel; the command fails unless every
host converges cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkMode {
			cfg.CheckMode = true
		}

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

		common.SetRunID(uuid.New().String())
		if cfg.Metrics.Enabled {
			go func() {
				if err := pkg.ServeMetrics(cfg.Metrics.Addr); err != nil {
					common.LogError("Metrics listener failed", map[string]interface{}{
						"addr":  cfg.Metrics.Addr,
						"error": err.Error(),
					})
				}
			}()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			failed []string
		)
		for _, host := range hosts {
			wg.Add(1)
			go func(host *pkg.Host) {
				defer wg.Done()
				if err := runHost(ctx, host, play, extraVars); err != nil {
					common.LogError("Host failed", map[string]interface{}{
						"host":  host.Name,
						"error": err.Error(),
					})
					mu.Lock()
					failed = append(failed, host.Name)
					mu.Unlock()
				}
			}(host)
		}
		wg.Wait()
		if cerr := runtime.ClosePools(); cerr != nil {
			common.LogWarn("Failed to close SSH pools", map[string]interface{}{
				"error": cerr.Error(),
			})
		}

		if len(failed) > 0 {
			return fmt.Errorf("run failed on %d of %d host(s): %s", len(failed), len(hosts), strings.Join(failed, ", "))
		}
		return nil
	},
}

func runHost(ctx context.Context, host *pkg.Host, play *pkg.Playbook, extraVars map[string]interface{}) error {
	conn, err := host.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			common.LogWarn("Failed to close connection", map[string]interface{}{
				"host":  host.Name,
				"error": cerr.Error(),
			})
		}
	}()

	engine := pkg.NewEngine(pkg.DefaultRegistry(), cfg)
	_, err = engine.Run(ctx, host, conn, play, extraVars)
	return err
}

func selectHosts() ([]*pkg.Host, error) {
	inv := pkg.LocalInventory()
	if inventoryFile != "" {
		loaded, err := pkg.LoadInventory(inventoryFile)
		if err != nil {
			return nil, err
		}
		inv = loaded
	}
	return inv.Select(limitHosts)
}

// parseExtraVars turns repeated key=value flags into bindings, parsing each
// value as YAML so numbers, booleans and flow collections come through typed.
func parseExtraVars(flags []string) (map[string]interface{}, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	vars := make(map[string]interface{}, len(flags))
	for _, flag := range flags {
		key, raw, found := strings.Cut(flag, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid extra var %q, expected key=value", flag)
		}
		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		vars[key] = value
	}
	return vars, nil
}

func init() {
	runCmd.Flags().StringVarP(&inventoryFile, "inventory", "i", "", "inventory file (defaults to localhost)")
	runCmd.Flags().StringVarP(&limitHosts, "limit", "l", "", "comma-separated host patterns to run against")
	runCmd.Flags().BoolVar(&checkMode, "check", false, "probe only, report what would change")
	runCmd.Flags().StringArrayVarP(&extraVarFlags, "extra-vars", "e", nil, "extra variables as key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}
