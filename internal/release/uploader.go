// Package release publishes produced archives as assets of a GitHub release.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"relpack/internal/security"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultUploadInterval paces asset uploads to stay clear of GitHub's
// secondary rate limits.
const DefaultUploadInterval = 500 * time.Millisecond

// ErrReleaseNotFound is returned when no release exists for the tag.
var ErrReleaseNotFound = errors.New("release not found")

// Asset describes one uploaded archive.
type Asset struct {
	Name     string
	Size     int
	URL      string
	Replaced bool
}

// Uploader attaches archives to an existing release, replacing assets
// with the same name.
type Uploader struct {
	client  *github.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a GitHub client. An empty token yields an
// unauthenticated client, which can read releases but not upload.
func NewClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// NewUploader creates an uploader for an "owner/repo" slug.
func NewUploader(client *github.Client, ownerRepo string, interval time.Duration, logger *slog.Logger) (*Uploader, error) {
	owner, repo, err := security.ValidateOwnerRepo(ownerRepo)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Uploader{
		client:  client,
		owner:   owner,
		repo:    repo,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// FindArchives returns the zip archives in dir in lexical order.
func FindArchives(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no archives found in %s", dir)
	}
	return matches, nil
}

// Upload attaches every path to the release tagged tag.
func (u *Uploader) Upload(ctx context.Context, tag string, paths []string) ([]Asset, error) {
	release, _, err := u.client.Repositories.GetReleaseByTag(ctx, u.owner, u.repo, tag)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s/%s@%s", ErrReleaseNotFound, u.owner, u.repo, tag)
		}
		return nil, fmt.Errorf("fetching release %s: %w", tag, err)
	}

	existing, err := u.existingAssets(ctx, release.GetID())
	if err != nil {
		return nil, err
	}

	uploaded := make([]Asset, 0, len(paths))
	for _, path := range paths {
		if err := u.limiter.Wait(ctx); err != nil {
			return uploaded, err
		}

		asset, err := u.uploadOne(ctx, release.GetID(), path, existing)
		if err != nil {
			return uploaded, err
		}
		u.logger.Info("Uploaded release asset", "name", asset.Name, "size", asset.Size, "replaced", asset.Replaced)
		uploaded = append(uploaded, asset)
	}

	return uploaded, nil
}

func (u *Uploader) uploadOne(ctx context.Context, releaseID int64, path string, existing map[string]int64) (Asset, error) {
	name := filepath.Base(path)
	asset := Asset{Name: name}

	if id, ok := existing[name]; ok {
		if _, err := u.client.Repositories.DeleteReleaseAsset(ctx, u.owner, u.repo, id); err != nil {
			return asset, fmt.Errorf("deleting existing asset %s: %w", name, err)
		}
		asset.Replaced = true
	}

	f, err := os.Open(path)
	if err != nil {
		return asset, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	created, _, err := u.client.Repositories.UploadReleaseAsset(ctx, u.owner, u.repo, releaseID,
		&github.UploadOptions{Name: name, MediaType: "application/zip"}, f)
	if err != nil {
		return asset, fmt.Errorf("uploading %s: %w", name, err)
	}

	asset.Size = created.GetSize()
	asset.URL = created.GetBrowserDownloadURL()
	return asset, nil
}

// existingAssets maps asset names to IDs across all pages.
func (u *Uploader) existingAssets(ctx context.Context, releaseID int64) (map[string]int64, error) {
	assets := make(map[string]int64)
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := u.client.Repositories.ListReleaseAssets(ctx, u.owner, u.repo, releaseID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing release assets: %w", err)
		}
		for _, a := range page {
			assets[a.GetName()] = a.GetID()
		}
		if resp == nil || resp.NextPage == 0 {
			return assets, nil
		}
		opts.Page = resp.NextPage
	}
}
