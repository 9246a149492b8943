package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hr-lifecycle/backend/internal/app"
	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/internal/config"
	"hr-lifecycle/backend/internal/engine"
	"hr-lifecycle/backend/internal/logging"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/pkg/models"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "lifecyclectl",
		Short:        "Administer the HR lifecycle store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newValidateCatalogCmd(),
		newSeedCmd(opts),
		newVerifyCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

// openApp loads configuration and opens the configured store.
func openApp(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app.App, error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logging.New(stderr, opts.logLevel))
}

func newValidateCatalogCmd() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "validate-catalog [file]",
		Short: "Validate a YAML catalog, or the built-in tracks when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dump {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(cat); err != nil {
					return err
				}
				return enc.Close()
			}
			for _, track := range cat.Tracks() {
				order, err := cat.TopologicalOrder(track)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d tasks\n  %s\n", track, len(order), strings.Join(order, " -> "))
			}
			fmt.Fprintln(out, "catalog is valid")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the catalog as YAML instead of a summary")
	return cmd
}

// seedFile is the YAML document accepted by seed.
type seedFile struct {
	Employees []seedEmployee `yaml:"employees"`
}

type seedEmployee struct {
	ID               string `yaml:"id"`
	FirstName        string `yaml:"first_name"`
	LastName         string `yaml:"last_name"`
	Email            string `yaml:"email"`
	Department       string `yaml:"department"`
	Designation      string `yaml:"designation"`
	EmployeeType     string `yaml:"employee_type"`
	ReportingManager string `yaml:"reporting_manager"`
	ManagerEmail     string `yaml:"manager_email"`
	Status           string `yaml:"status"`
}

func (e seedEmployee) model(now time.Time) (*models.Employee, error) {
	if strings.TrimSpace(e.ID) == "" {
		return nil, errors.New("employee id is required")
	}
	if strings.TrimSpace(e.Email) == "" {
		return nil, fmt.Errorf("employee %s: email is required", e.ID)
	}
	typ := models.EmployeeType(e.EmployeeType)
	if typ == "" {
		typ = models.EmployeeFullTime
	}
	if _, ok := typ.OnboardingTrack(); !ok {
		return nil, fmt.Errorf("employee %s: unknown employee_type %q", e.ID, e.EmployeeType)
	}
	status := e.Status
	if status == "" {
		status = "active"
	}
	return &models.Employee{
		ID:               e.ID,
		FirstName:        e.FirstName,
		LastName:         e.LastName,
		Email:            e.Email,
		Department:       e.Department,
		Designation:      e.Designation,
		EmployeeType:     typ,
		ReportingManager: e.ReportingManager,
		ManagerEmail:     e.ManagerEmail,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <employees.yaml>",
		Short: "Insert or replace employee directory records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc seedFile
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if len(doc.Employees) == 0 {
				return fmt.Errorf("%s: no employees", args[0])
			}

			now := time.Now().UTC().Truncate(time.Millisecond)
			employees := make([]*models.Employee, 0, len(doc.Employees))
			for _, e := range doc.Employees {
				emp, err := e.model(now)
				if err != nil {
					return err
				}
				employees = append(employees, emp)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, emp := range employees {
				if err := a.Repo.PutEmployee(ctx, emp); err != nil {
					return fmt.Errorf("seed %s: %w", emp.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d employees\n", len(employees))
			return nil
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [workflow-id...]",
		Short: "Replay audit histories and compare them with the stored workflows",
		Long:  "Replays the audit history of each workflow, or of every stored workflow when no id is given, and reports any divergence from the stored view.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ids := args
			if len(ids) == 0 {
				wfs, err := a.Lifecycle.List(ctx, repository.WorkflowFilter{})
				if err != nil {
					return err
				}
				for _, wf := range wfs {
					ids = append(ids, wf.ID)
				}
			}

			out := cmd.OutOrStdout()
			mismatches := 0
			for _, id := range ids {
				_, err := a.Lifecycle.Verify(ctx, id)
				switch {
				case err == nil:
					fmt.Fprintf(out, "ok       %s\n", id)
				case errors.Is(err, engine.ErrReplayMismatch):
					mismatches++
					fmt.Fprintf(out, "MISMATCH %s: %v\n", id, err)
				default:
					return err
				}
			}
			if mismatches > 0 {
				return fmt.Errorf("%d of %d workflows diverge from their history", mismatches, len(ids))
			}
			fmt.Fprintf(out, "%d workflows verified\n", len(ids))
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <workflow-id>",
		Short: "Print the audit history of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Lifecycle.History(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTIME\tTASK\tFROM\tTO\tACTOR\tNOTE")
			for _, e := range entries {
				task := e.TaskID
				if e.IsWorkflowLevel() {
					task = "(workflow)"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Seq, e.Timestamp.Format(time.RFC3339), task, e.FromStatus, e.ToStatus, e.Actor, e.Note)
			}
			return w.Flush()
		},
	}
}
