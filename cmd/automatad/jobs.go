package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/danyelangel/automata/internal/config"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/scheduler"
	"github.com/danyelangel/automata/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	jobsConfigPath string

	jobAddName     string
	jobAddTenant   string
	jobAddModel    string
	jobAddFreq     string
	jobAddPrompt   string
	jobAddStartAt  string
	jobAddMaxExecs int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage automation jobs",
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new automation job",
	Run:   jobsAddHandler,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all automation jobs",
	Run:   jobsListHandler,
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobsSetEnabledHandler(args[0], true)
	},
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable <job-id>",
	Short: "Disable a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobsSetEnabledHandler(args[0], false)
	},
}

func init() {
	jobsCmd.PersistentFlags().StringVarP(&jobsConfigPath, "config", "c", "", "Path to config file (default ./config.toml)")

	jobsAddCmd.Flags().StringVar(&jobAddName, "name", "", "Job name (required)")
	jobsAddCmd.Flags().StringVar(&jobAddTenant, "tenant", "", "Tenant identifier (required)")
	jobsAddCmd.Flags().StringVar(&jobAddModel, "model", "", "Model identifier (default from config)")
	jobsAddCmd.Flags().StringVar(&jobAddFreq, "frequency", "daily", "Cadence: once, 5min, 15min, 30min, hourly, daily, weekly, monthly")
	jobsAddCmd.Flags().StringVar(&jobAddPrompt, "prompt", "", "Prompt sent to the agent on each run (required)")
	jobsAddCmd.Flags().StringVar(&jobAddStartAt, "start-at", "", "Start-eligibility time, RFC 3339 (default now)")
	jobsAddCmd.Flags().IntVar(&jobAddMaxExecs, "max-executions", 0, "Maximum number of runs, 0 for unbounded")
	_ = jobsAddCmd.MarkFlagRequired("name")
	_ = jobsAddCmd.MarkFlagRequired("tenant")
	_ = jobsAddCmd.MarkFlagRequired("prompt")

	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsEnableCmd)
	jobsCmd.AddCommand(jobsDisableCmd)
}

// openJobStore loads the configuration and opens the store for the job
// subcommands. Logging goes to stderr so the command output stays clean.
func openJobStore(ctx context.Context) (*store.Store, *config.Config) {
	configPath := jobsConfigPath
	if configPath == "" {
		configPath = "./config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "error", Format: cfg.Logging.Format, Output: "stderr"})
	if err != nil {
		fmt.Printf("❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(ctx, cfg.Store.StateDir, log)
	if err != nil {
		fmt.Printf("❌ Failed to open store: %v\n", err)
		os.Exit(1)
	}
	return st, cfg
}

func jobsAddHandler(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	st, cfg := openJobStore(ctx)
	defer st.Close()

	freq, err := scheduler.ParseFrequency(jobAddFreq)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	startAt := now
	if jobAddStartAt != "" {
		startAt, err = time.Parse(time.RFC3339, jobAddStartAt)
		if err != nil {
			fmt.Printf("❌ Invalid --start-at: %v\n", err)
			os.Exit(1)
		}
	}

	model := jobAddModel
	if model == "" {
		model = cfg.Scheduler.DefaultModel
	}

	job := &scheduler.Job{
		ID:            uuid.NewString(),
		Name:          jobAddName,
		TenantID:      jobAddTenant,
		Model:         model,
		Freq:          freq,
		Enabled:       true,
		Prompt:        jobAddPrompt,
		StartAt:       startAt,
		MaxExecutions: jobAddMaxExecs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.InsertJob(ctx, job); err != nil {
		fmt.Printf("❌ Failed to add job: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Added job %s (%s, %s)\n", job.ID, job.Name, job.Freq)
}

func jobsListHandler(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	st, _ := openJobStore(ctx)
	defer st.Close()

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to list jobs: %v\n", err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs.")
		return
	}

	for _, job := range jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		lastRun := "never"
		if job.LastRun != nil {
			lastRun = job.LastRun.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-24s  %-8s  %-8s  runs=%d  last=%s\n",
			job.ID, job.Name, job.Freq, state, job.Executions, lastRun)
	}
}

func jobsSetEnabledHandler(id string, enabled bool) {
	ctx := context.Background()
	st, _ := openJobStore(ctx)
	defer st.Close()

	if err := st.SetJobEnabled(ctx, id, enabled); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if enabled {
		fmt.Printf("✅ Enabled job %s\n", id)
	} else {
		fmt.Printf("✅ Disabled job %s\n", id)
	}
}
