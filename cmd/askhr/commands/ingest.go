package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zorbit-ai/askhr-go/internal/blob"
	"github.com/zorbit-ai/askhr-go/internal/ingestion"
	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/provider"
)

// NewIngestCmd constructs the `askhr ingest` command, which loads Q&A files
// and policy documents into the knowledge base for one tenant.
func NewIngestCmd() *cobra.Command {
	var userType string
	var files []string
	var blobs []string
	var blobPrefix string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest Q&A files and documents into the knowledge base",
		Long: `Load files into the tenant-scoped knowledge base.

.json and .csv files are parsed as Q&A batches (each record needs "question"
and "answer" fields); any other extension is ingested as a plain-text
document and chunked.

Files can come from the local filesystem (--file) or from the Azure Blob
staging container (--blob, requires AZURE_STORAGE_CONNECTION_STRING or
AZURE_STORAGE_ACCOUNT_URL).

Examples:
  askhr ingest --user-type eor --file faq.json
  askhr ingest --user-type eor --file handbook.txt --file leave-policy.txt
  askhr ingest --user-type contractor --blob uploads/contractor-faq.csv
  askhr ingest --user-type contractor --blob-prefix uploads/contractor/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(files) == 0 && len(blobs) == 0 && blobPrefix == "" {
				return fmt.Errorf("ingest: at least one --file, --blob or --blob-prefix is required")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise model provider: %w", err)
			}

			comps, err := buildComponents(ctx, log, chatModel)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer comps.close()

			var stage *blob.Stage
			if len(blobs) > 0 || blobPrefix != "" {
				stage, err = blob.NewFromEnv()
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if stage == nil {
					return fmt.Errorf("ingest: blob flags require AZURE_STORAGE_CONNECTION_STRING or AZURE_STORAGE_ACCOUNT_URL")
				}
			}

			if blobPrefix != "" {
				staged, err := stage.List(ctx, blobPrefix)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if len(staged) == 0 {
					return fmt.Errorf("ingest: no staged blobs under prefix %q", blobPrefix)
				}
				blobs = append(blobs, staged...)
			}

			for _, path := range files {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("ingest: open %s: %w", path, err)
				}
				err = ingestOne(cmd, comps, userType, filepath.Base(path), f)
				_ = f.Close()
				if err != nil {
					return err
				}
			}

			for _, name := range blobs {
				r, err := stage.Get(ctx, name)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				err = ingestOne(cmd, comps, userType, filepath.Base(name), r)
				_ = r.Close()
				if err != nil {
					return err
				}
				if err := stage.Delete(ctx, name); err != nil {
					log.Warn("ingest: failed to delete staged blob", slog.String("blob", name), slog.Any("error", err))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&userType, "user-type", "u", "", "Tenant the content belongs to (required)")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Local file to ingest (repeatable)")
	cmd.Flags().StringSliceVarP(&blobs, "blob", "b", nil, "Staged blob name to ingest (repeatable)")
	cmd.Flags().StringVar(&blobPrefix, "blob-prefix", "", "Ingest every staged blob under this prefix")
	_ = cmd.MarkFlagRequired("user-type")

	return cmd
}

// ingestOne ingests a single file in Q&A or document mode based on its
// extension and prints a one-line summary.
func ingestOne(cmd *cobra.Command, comps *components, userType, filename string, r io.Reader) error {
	ctx := cmd.Context()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".csv":
		records, err := ingestion.ReadQARecords(filename, r)
		if err != nil {
			return fmt.Errorf("ingest: %s: %w", filename, err)
		}
		result, err := comps.svc.IngestQA(ctx, userType, records)
		if err != nil {
			return fmt.Errorf("ingest: %s: %w", filename, err)
		}
		fmt.Printf("%s: ingested %d Q&A pairs (%d skipped)\n", filename, len(result.IDs), len(result.Unprocessed))
	default:
		text, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("ingest: read %s: %w", filename, err)
		}
		result, err := comps.svc.IngestFile(ctx, userType, filename, string(text))
		if err != nil {
			return fmt.Errorf("ingest: %s: %w", filename, err)
		}
		fmt.Printf("%s: ingested %d chunks\n", filename, len(result.DocIDs))
	}
	return nil
}
