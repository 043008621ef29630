package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconcile"
)

// runFlags are shared by every command that commits mutations.
type runFlags struct {
	dryRun      bool
	batchSize   int
	concurrency int
	resumeAfter string
	policy      string
	report      string
}

func (f *runFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.dryRun, "dry-run", false, "plan and report without writing")
	flags.IntVar(&f.batchSize, "batch-size", 0, "operations per batch (max 500)")
	flags.IntVar(&f.concurrency, "concurrency", 0, "batches committed in parallel")
	flags.StringVar(&f.resumeAfter, "resume-after", "", "skip operations at or before this record id")
	flags.StringVar(&f.policy, "policy", "", "matching policy YAML file")
	flags.StringVar(&f.report, "report", "", "write the JSON report here instead of stdout")
}

func (f *runFlags) options() batch.Options {
	opts := app.Config.BatchOptions()
	opts.DryRun = f.dryRun
	opts.ResumeAfter = f.resumeAfter
	if f.batchSize > 0 {
		opts.MaxOpsPerBatch = f.batchSize
	}
	if f.concurrency > 0 {
		opts.Concurrency = f.concurrency
	}
	return opts
}

// runWith starts the app, runs fn and always prints whatever report came back.
func (f *runFlags) runWith(cmd *cobra.Command, fn func(*reconcile.Reconciler, batch.Options) (*models.ResolutionReport, error)) error {
	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}
	r, err := app.Reconciler(f.policy)
	if err != nil {
		return err
	}

	report, runErr := fn(r, f.options())
	if err := writeReport(cmd.OutOrStdout(), f.report, report); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		app.Logger.WithContext(ctx).WithError(runErr).Error("Run failed")
	}
	return runErr
}

func newDedupeCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     "dedupe",
		Short:   "Merge stored records that share a normalized name and address",
		GroupID: "runs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.runWith(cmd, func(r *reconcile.Reconciler, opts batch.Options) (*models.ResolutionReport, error) {
				return r.Deduplicate(cmd.Context(), opts)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newBackfillCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     "backfill-listing",
		Short:   "Mark every record without a market listing as not listed",
		GroupID: "runs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.runWith(cmd, func(r *reconcile.Reconciler, opts batch.Options) (*models.ResolutionReport, error) {
				return r.BackfillListing(cmd.Context(), opts)
			})
		},
	}
	flags.register(cmd)
	return cmd
}
