package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"relpack/internal/project"
	"relpack/internal/release"

	"github.com/spf13/cobra"
)

var (
	uploadRepo  string
	uploadTag   string
	uploadDir   string
	uploadToken string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Attach produced archives to a GitHub release",
	Long: `Upload every zip archive in the output directory as an asset of an existing
GitHub release. Assets with the same name are replaced.

Archive names carry the platform label, which is what updaters match on
when picking the asset for their platform.`,
	Example: `  GITHUB_TOKEN=... relpack upload --repo UchuServer/Uchu.Tool --tag v1.2.0`,
	Args:    cobra.NoArgs,
	RunE:    runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadRepo, "repo", getEnvOrDefault("RELPACK_GITHUB_REPO", ""), "GitHub repository (owner/repo)")
	uploadCmd.Flags().StringVar(&uploadTag, "tag", "", "Tag of the release to upload to")
	uploadCmd.Flags().StringVar(&uploadDir, "dir", project.DefaultOutputDir, "Directory containing the archives")
	uploadCmd.Flags().StringVar(&uploadToken, "token", getEnvOrDefault("GITHUB_TOKEN", ""), "GitHub token with contents:write")
	uploadCmd.MarkFlagRequired("tag")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadRepo == "" {
		return fmt.Errorf("--repo is required (or set RELPACK_GITHUB_REPO)")
	}
	if uploadToken == "" {
		return fmt.Errorf("a GitHub token is required: use --token or set GITHUB_TOKEN")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	archives, err := release.FindArchives(uploadDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := release.NewClient(ctx, uploadToken)
	uploader, err := release.NewUploader(client, uploadRepo, release.DefaultUploadInterval, logger)
	if err != nil {
		return err
	}

	logger.Info("Uploading archives", "repo", uploadRepo, "tag", uploadTag, "count", len(archives))
	assets, err := uploader.Upload(ctx, uploadTag, archives)
	if err != nil {
		return fmt.Errorf("upload failed after %d of %d archives: %w", len(assets), len(archives), err)
	}

	for _, a := range assets {
		fmt.Fprintln(cmd.OutOrStdout(), a.URL)
	}
	return nil
}
