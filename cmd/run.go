package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/agent"
	"github.com/xkilldash9x/mobilepilot/internal/config"
	"github.com/xkilldash9x/mobilepilot/internal/device"
	"github.com/xkilldash9x/mobilepilot/internal/llmclient"
	"github.com/xkilldash9x/mobilepilot/internal/observability"
)

// Seams for tests.
var (
	deviceOptions []device.Option
	newDevice     = func(cfg config.DeviceConfig, serial string, logger *zap.Logger) schemas.Device {
		opts := append([]device.Option{device.WithLogger(logger)}, deviceOptions...)
		return device.NewADB(cfg, serial, opts...)
	}
	newDecider = llmclient.NewDecider
)

// newRunCmd creates the `run` command, which executes one task end to end.
func newRunCmd(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Carry out a task on the connected phone",
		Long: `Reads a task (from --task or stdin), then repeatedly captures the screen,
labels its interactive elements, asks the configured model what to do and
performs the chosen action, until the model stops or the round budget runs out.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"device.serial":      "serial",
				"agent.max_rounds":   "max-rounds",
				"agent.artifact_dir": "artifact-dir",
				"llm.provider":       "provider",
			}
			for key, flag := range bindings {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}

			task, _ := cmd.Flags().GetString("task")
			if strings.TrimSpace(task) == "" {
				if task, err = promptTask(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}

			devs, err := device.ListDevices(ctx, cfg.Device().ADBPath, deviceOptions...)
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			serial, err := device.Select(devs, cfg.Device().Serial)
			if err != nil {
				return err
			}
			logger.Info("Using device", zap.String("serial", serial))

			decider, err := newDecider(ctx, cfg.LLM(), cfg.Agent().DecisionTimeout, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize decision service: %w", err)
			}

			ctl, err := agent.New(cfg.Agent(), newDevice(cfg.Device(), serial, logger), decider, logger,
				agent.WithConsole(observability.NewConsole(cmd.OutOrStdout())))
			if err != nil {
				return err
			}

			res, err := ctl.Run(ctx, task)
			if err != nil {
				return err
			}
			logger.Info("Task finished",
				zap.String("state", string(res.State)),
				zap.Int("rounds", res.Rounds),
				zap.String("transcript", res.TranscriptPath))
			return nil
		},
	}

	runCmd.Flags().StringP("task", "t", "", "Task to carry out. Prompted for on stdin when empty.")
	runCmd.Flags().StringP("serial", "s", "", "Serial of the device to drive. (Overrides config/env)")
	runCmd.Flags().Int("max-rounds", 7, "Maximum number of rounds. (Overrides config/env)")
	runCmd.Flags().String("artifact-dir", "task", "Directory for screenshots, snapshots and the transcript. (Overrides config/env)")
	runCmd.Flags().String("provider", string(config.ProviderOpenAI), "Decision service: openai, gemini or qwen. (Overrides config/env)")

	return runCmd
}

// promptTask reads one line from in.
func promptTask(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Please enter your command: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read task: %w", err)
	}
	task := strings.TrimSpace(line)
	if task == "" {
		return "", errors.New("no task given")
	}
	return task, nil
}
