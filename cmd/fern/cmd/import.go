package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconcile"
)

func newImportCmd() *cobra.Command {
	flags := &runFlags{}
	var (
		file      string
		fromKafka bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Match incoming records against the corpus and merge or create them",
		Long: `import reads flattened company records, one JSON object per line, from a
file (or "-" for stdin) or drains them from the configured Kafka topic.
Kafka offsets are committed only after a successful run.`,
		GroupID: "runs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.runWith(cmd, func(r *reconcile.Reconciler, opts batch.Options) (*models.ResolutionReport, error) {
				src, closeSrc, err := openSource(cmd, file, fromKafka)
				if err != nil {
					return nil, err
				}
				defer closeSrc()
				return r.Import(cmd.Context(), src, opts)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", `JSON-lines file to import ("-" for stdin)`)
	cmd.Flags().BoolVar(&fromKafka, "kafka", false, "drain the configured input topic")
	cmd.MarkFlagsMutuallyExclusive("file", "kafka")
	cmd.MarkFlagsOneRequired("file", "kafka")
	flags.register(cmd)
	return cmd
}

func openSource(cmd *cobra.Command, file string, fromKafka bool) (reconcile.RecordSource, func(), error) {
	if fromKafka {
		if !app.Config.KafkaEnabled() {
			return nil, nil, errors.New("--kafka requires KAFKA_BROKERS")
		}
		consumer := kafka.NewConsumer(app.Config.Consumer(), app.Logger)
		return consumer, func() { _ = consumer.Close() }, nil
	}

	if file == "-" {
		return reconcile.NewJSONLinesSource(cmd.InOrStdin()), func() {}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s", file)
	}
	return reconcile.NewJSONLinesSource(f), func() { _ = f.Close() }, nil
}
