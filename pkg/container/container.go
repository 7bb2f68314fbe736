package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/thin-edge/tedge-image-prune/pkg/retention"
)

var EngineAPI string = "api"
var EngineCLI string = "cli"

// NoneValue is used by the container engines for untagged images
var NoneValue string = "<none>"

var ErrListingUnavailable = errors.New("image listing unavailable")
var ErrUnknownEngine = errors.New("unknown container engine")

// ListingError is returned when the images could not be listed
type ListingError struct {
	Err error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrListingUnavailable, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

func (e *ListingError) Is(target error) bool {
	return target == ErrListingUnavailable
}

// DeleteError is returned when a single image could not be removed
type DeleteError struct {
	Reference string
	Reason    string
	Err       error
}

func (e *DeleteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("failed to delete image '%s': %s", e.Reference, e.Reason)
	}
	return fmt.Sprintf("failed to delete image '%s': %s", e.Reference, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// ImageClient lists and removes local images
type ImageClient interface {
	// ListImages returns all tagged images. Entries which could not be read are
	// returned as warnings rather than failing the whole listing
	ListImages(ctx context.Context) ([]retention.ImageRecord, []error, error)

	// DeleteImage removes a single repository:tag reference and returns the engine's output
	DeleteImage(ctx context.Context, repository, tag string) (string, error)
}

type Options struct {
	Engine string
	Binary string

	// Only include images matching one of the references, e.g. "svc-*" or "registry:5000/app"
	References []string
}

func NewImageClient(options Options) (ImageClient, error) {
	switch strings.ToLower(options.Engine) {
	case "", EngineAPI:
		client, err := NewEngineClient()
		if err != nil {
			return nil, err
		}
		client.References = options.References
		return client, nil
	case EngineCLI:
		client := NewCLIClient(options.Binary)
		client.References = options.References
		return client, nil
	default:
		return nil, errors.Wrapf(ErrUnknownEngine, "%q", options.Engine)
	}
}

func Reference(repository, tag string) string {
	return fmt.Sprintf("%s:%s", repository, tag)
}

// SplitReference splits a repository:tag reference. The tag defaults to "latest".
// A colon which belongs to a registry port is not treated as a tag separator
func SplitReference(v string) (string, string) {
	i := strings.LastIndex(v, ":")
	if i < 0 || strings.Contains(v[i+1:], "/") {
		return v, "latest"
	}
	return v[:i], v[i+1:]
}
