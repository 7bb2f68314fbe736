package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/thin-edge/tedge-image-prune/pkg/container"
	"github.com/thin-edge/tedge-image-prune/pkg/retention"
)

// Confirmer asks the user for a yes/no answer
type Confirmer interface {
	Confirm(question string) bool
}

type Config struct {
	// DryRun only prints the report
	DryRun bool
}

type App struct {
	client  container.ImageClient
	confirm Confirmer
	out     io.Writer
	config  Config
}

// Summary counts the outcome of a run
type Summary struct {
	Repositories int
	Kept         int
	Candidates   int
	Deleted      int
	Failed       int
}

var (
	headingColor = color.New(color.Bold)
	removeColor  = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func NewApp(client container.ImageClient, confirm Confirmer, out io.Writer, config Config) *App {
	return &App{
		client:  client,
		confirm: confirm,
		out:     out,
		config:  config,
	}
}

// loadGroups lists the images and applies the retention limit.
// A nil slice is returned if there is nothing to process
func (a *App) loadGroups(ctx context.Context, limit int) []retention.RetentionGroup {
	records, warnings, err := a.client.ListImages(ctx)
	if err != nil {
		slog.Error("Failed to list images.", "err", err)
		errorColor.Fprintf(a.out, "Error listing images: %s\n", err)
		return nil
	}

	for _, warning := range warnings {
		slog.Warn("Skipping malformed image record.", "err", warning)
		var malformed *retention.MalformedRecordError
		if errors.As(warning, &malformed) {
			fmt.Fprintf(a.out, "Error processing line: %s, error: %s\n", malformed.Line, malformed.Err)
		} else {
			fmt.Fprintf(a.out, "Error processing image: %s\n", warning)
		}
	}

	tagged := make([]retention.ImageRecord, 0, len(records))
	for _, record := range records {
		// images only referenced by digest can not be removed by repository:tag
		if record.Repository == container.NoneValue || record.Tag == container.NoneValue {
			continue
		}
		tagged = append(tagged, record)
	}
	if skipped := len(records) - len(tagged); skipped > 0 {
		slog.Debug("Ignoring untagged images.", "total", skipped)
	}

	if len(tagged) == 0 {
		fmt.Fprintln(a.out, "No container images found.")
		return nil
	}

	return retention.Apply(tagged, limit)
}

func (a *App) printGroup(group retention.RetentionGroup, showSize bool) {
	format := func(r retention.ImageRecord) string {
		if showSize && r.Size > 0 {
			return fmt.Sprintf("%s (%s)", r, retention.HumanSize(r.Size))
		}
		return r.String()
	}

	fmt.Fprintln(a.out)
	headingColor.Fprintf(a.out, "Repository: %s\n", group.Repository)
	fmt.Fprintf(a.out, "  Total number of images: %d\n", group.Total())

	fmt.Fprintln(a.out, "  Images to keep (most recent):")
	for _, r := range group.Keep {
		fmt.Fprintf(a.out, "    %s\n", format(r))
	}

	if len(group.Remove) == 0 {
		fmt.Fprintln(a.out, "  No images to be removed.")
		return
	}

	removeColor.Fprintln(a.out, "  Images to be removed:")
	for _, r := range group.Remove {
		fmt.Fprintf(a.out, "    %s\n", format(r))
	}
}

// List prints the retention report without asking for confirmation or deleting anything
func (a *App) List(ctx context.Context, limit int) Summary {
	summary := Summary{}
	for _, group := range a.loadGroups(ctx, limit) {
		a.printGroup(group, true)
		summary.Repositories++
		summary.Kept += len(group.Keep)
		summary.Candidates += len(group.Remove)
	}
	return summary
}

// Run prints the retention report per repository, and deletes the old images
// of a repository once the user confirms it
func (a *App) Run(ctx context.Context, limit int) Summary {
	summary := Summary{}
	for _, group := range a.loadGroups(ctx, limit) {
		a.printGroup(group, false)
		summary.Repositories++
		summary.Kept += len(group.Keep)
		summary.Candidates += len(group.Remove)

		if len(group.Remove) == 0 || a.config.DryRun {
			continue
		}

		question := fmt.Sprintf("Do you want to delete %d old images for '%s'? (y/n): ", len(group.Remove), group.Repository)
		if !a.confirm.Confirm(question) {
			slog.Info("Skipping repository.", "repository", group.Repository)
			continue
		}

		for _, r := range group.Remove {
			if err := a.Delete(ctx, r.Repository, r.Tag); err != nil {
				summary.Failed++
			} else {
				summary.Deleted++
			}
		}
	}
	return summary
}

// Delete removes a single image and reports the outcome
func (a *App) Delete(ctx context.Context, repository, tag string) error {
	ref := container.Reference(repository, tag)
	fmt.Fprintf(a.out, "Deleting image: %s\n", ref)
	out, err := a.client.DeleteImage(ctx, repository, tag)
	if err != nil {
		slog.Warn("Could not delete the image.", "ref", ref, "err", err)
		errorColor.Fprintf(a.out, "Failed to delete image '%s': %s\n", ref, deleteReason(err))
		return err
	}
	if out != "" {
		fmt.Fprintln(a.out, out)
	}
	slog.Info("Deleted image.", "ref", ref)
	return nil
}

func deleteReason(err error) string {
	var deleteErr *container.DeleteError
	if errors.As(err, &deleteErr) {
		if deleteErr.Reason != "" {
			return deleteErr.Reason
		}
		return deleteErr.Err.Error()
	}
	return err.Error()
}
