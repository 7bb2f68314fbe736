package container

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/thin-edge/tedge-image-prune/pkg/retention"
)

// imageAPI is the part of the docker client used for listing and removing images
type imageAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
}

type EngineClient struct {
	Client     imageAPI
	References []string
}

func NewEngineClient() (*EngineClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &EngineClient{
		Client: cli,
	}, nil
}

func (c *EngineClient) ListImages(ctx context.Context) ([]retention.ImageRecord, []error, error) {
	filterValues := []filters.KeyValuePair{
		filters.Arg("dangling", "false"),
	}
	for _, ref := range c.References {
		filterValues = append(filterValues, filters.Arg("reference", ref))
	}

	images, err := c.Client.ImageList(ctx, image.ListOptions{
		All:     false,
		Filters: filters.NewArgs(filterValues...),
	})
	if err != nil {
		return nil, nil, &ListingError{Err: err}
	}

	records := make([]retention.ImageRecord, 0, len(images))
	warnings := make([]error, 0)
	for _, item := range images {
		records = append(records, NewImageRecordsFromSummary(item)...)
	}
	slog.Debug("Listed images.", "images", len(images), "references", len(records))
	return records, warnings, nil
}

// NewImageRecordsFromSummary expands an image summary into one record per repository tag.
// The creation time is truncated to the local date to match the cli's listing
func NewImageRecordsFromSummary(item image.Summary) []retention.ImageRecord {
	created := time.Unix(item.Created, 0).Local()
	createdAt := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)
	id := strings.TrimPrefix(item.ID, "sha256:")
	if len(id) > 12 {
		id = id[:12]
	}

	repoTags := item.RepoTags
	if len(repoTags) == 0 {
		repoTags = []string{Reference(NoneValue, NoneValue)}
	}

	records := make([]retention.ImageRecord, 0, len(repoTags))
	for _, repoTag := range repoTags {
		repository, tag := SplitReference(repoTag)
		records = append(records, retention.ImageRecord{
			Repository: repository,
			Tag:        tag,
			CreatedAt:  createdAt,
			ID:         id,
			Size:       item.Size,
		})
	}
	return records
}

func (c *EngineClient) DeleteImage(ctx context.Context, repository, tag string) (string, error) {
	ref := Reference(repository, tag)
	items, err := c.Client.ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         false,
		PruneChildren: true,
	})
	if err != nil {
		deleteErr := &DeleteError{Reference: ref, Err: err}
		switch {
		case errdefs.IsNotFound(err):
			deleteErr.Reason = "image not found"
		case errdefs.IsConflict(err):
			deleteErr.Reason = fmt.Sprintf("image is in use: %s", err)
		}
		slog.Debug("Could not remove the image.", "ref", ref, "err", err)
		return "", deleteErr
	}

	output := make([]string, 0, len(items))
	for _, item := range items {
		if item.Untagged != "" {
			output = append(output, "Untagged: "+item.Untagged)
		}
		if item.Deleted != "" {
			output = append(output, "Deleted: "+item.Deleted)
		}
	}
	return strings.Join(output, "\n"), nil
}
