package container

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImageAPI struct {
	images    []image.Summary
	listErr   error
	removeErr map[string]error
	removed   []string
	options   []image.RemoveOptions
	listOpts  image.ListOptions
}

func (f *fakeImageAPI) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	f.listOpts = options
	return f.images, f.listErr
}

func (f *fakeImageAPI) ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error) {
	if err, ok := f.removeErr[imageID]; ok {
		return nil, err
	}
	f.removed = append(f.removed, imageID)
	f.options = append(f.options, options)
	return []image.DeleteResponse{
		{Untagged: imageID},
		{Deleted: "sha256:abcdef"},
	}, nil
}

func TestSplitReference(t *testing.T) {
	tests := []struct {
		in   string
		repo string
		tag  string
	}{
		{in: "svc-a:1.0", repo: "svc-a", tag: "1.0"},
		{in: "svc-a", repo: "svc-a", tag: "latest"},
		{in: "localhost:5000/svc-a:2", repo: "localhost:5000/svc-a", tag: "2"},
		{in: "localhost:5000/svc-a", repo: "localhost:5000/svc-a", tag: "latest"},
		{in: "<none>:<none>", repo: "<none>", tag: "<none>"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			repo, tag := SplitReference(tt.in)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestNewImageClient(t *testing.T) {
	client, err := NewImageClient(Options{Engine: "CLI", Binary: "podman"})
	require.NoError(t, err)
	cliClient, ok := client.(*CLIClient)
	require.True(t, ok)
	assert.Equal(t, "podman", cliClient.Binary)

	_, err = NewImageClient(Options{Engine: "containerd"})
	assert.True(t, errors.Is(err, ErrUnknownEngine))
}

func setLocal(t *testing.T, loc *time.Location) {
	local := time.Local
	time.Local = loc
	t.Cleanup(func() { time.Local = local })
}

func TestEngineClientListImages(t *testing.T) {
	setLocal(t, time.UTC)
	created := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)
	api := &fakeImageAPI{
		images: []image.Summary{
			{
				ID:       "sha256:0b1edfbffd27c935a666e233a2d4a3e3b8e8e0c9d3c2b4c5c6c7c8c9d0e1f2a3",
				RepoTags: []string{"svc-a:1.0", "svc-a:latest"},
				Created:  created.Unix(),
				Size:     1024,
			},
			{
				ID:      "sha256:1111",
				Created: created.Unix(),
			},
		},
	}
	client := &EngineClient{Client: api}

	records, warnings, err := client.ListImages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 3)

	assert.Equal(t, "svc-a:1.0", records[0].Reference())
	assert.Equal(t, "svc-a:latest", records[1].Reference())
	assert.Equal(t, "0b1edfbffd27", records[0].ID)
	assert.Equal(t, int64(1024), records[0].Size)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), records[0].CreatedAt)

	assert.Equal(t, "<none>:<none>", records[2].Reference())
	assert.Equal(t, "1111", records[2].ID)
}

func TestEngineClientUsesLocalDate(t *testing.T) {
	setLocal(t, time.FixedZone("UTC+3", 3*60*60))
	created := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)

	records := NewImageRecordsFromSummary(image.Summary{
		RepoTags: []string{"svc-a:1"},
		Created:  created.Unix(),
	})
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), records[0].CreatedAt)
}

func TestEngineClientListImagesFilters(t *testing.T) {
	api := &fakeImageAPI{}
	client := &EngineClient{Client: api, References: []string{"svc-*", "registry:5000/app"}}

	_, _, err := client.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"false"}, api.listOpts.Filters.Get("dangling"))
	assert.ElementsMatch(t, []string{"svc-*", "registry:5000/app"}, api.listOpts.Filters.Get("reference"))
	assert.False(t, api.listOpts.All)
}

func TestEngineClientListImagesFailure(t *testing.T) {
	client := &EngineClient{Client: &fakeImageAPI{listErr: fmt.Errorf("cannot connect to the docker daemon")}}
	_, _, err := client.ListImages(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrListingUnavailable))
	assert.Contains(t, err.Error(), "cannot connect to the docker daemon")
}

func TestEngineClientDeleteImage(t *testing.T) {
	api := &fakeImageAPI{
		removeErr: map[string]error{
			"svc-a:gone":  errdefs.NotFound(fmt.Errorf("no such image")),
			"svc-a:inuse": errdefs.Conflict(fmt.Errorf("image is being used by running container")),
		},
	}
	client := &EngineClient{Client: api}

	out, err := client.DeleteImage(context.Background(), "svc-a", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "Untagged: svc-a:1.0\nDeleted: sha256:abcdef", out)
	assert.Equal(t, []string{"svc-a:1.0"}, api.removed)
	assert.True(t, api.options[0].PruneChildren)
	assert.False(t, api.options[0].Force)

	_, err = client.DeleteImage(context.Background(), "svc-a", "gone")
	var deleteErr *DeleteError
	require.True(t, errors.As(err, &deleteErr))
	assert.Equal(t, "svc-a:gone", deleteErr.Reference)
	assert.Equal(t, "image not found", deleteErr.Reason)
	assert.True(t, errdefs.IsNotFound(err))

	_, err = client.DeleteImage(context.Background(), "svc-a", "inuse")
	require.True(t, errors.As(err, &deleteErr))
	assert.Contains(t, deleteErr.Error(), "image is in use")
}

type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, call)
	if err, ok := f.errs[call]; ok {
		return nil, err
	}
	return []byte(f.outputs[call]), nil
}

func listCall(binary string, filters ...string) string {
	call := binary + " image ls --format " + ListFormat
	for _, f := range filters {
		call += " --filter reference=" + f
	}
	return call
}

func TestCLIClientListImages(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{
			listCall("docker"): strings.Join([]string{
				`{"Repository":"svc-a","Tag":"1","CreatedAt":"2024-01-01 10:00:00 +0000 UTC","ID":"0b1edfbffd27","Size":"10MB"}`,
				`not json`,
				`{"Repository":"svc-a","Tag":"2","CreatedAt":"2024-02-01 10:00:00 +0000 UTC","ID":"1a2b3c4d5e6f","Size":"N/A"}`,
				"",
			}, "\n"),
		},
	}
	client := NewCLIClient("docker")
	client.Run = runner.Run

	records, warnings, err := client.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "svc-a:1", records[0].Reference())
	assert.Equal(t, int64(10_000_000), records[0].Size)
	assert.Equal(t, "svc-a:2", records[1].Reference())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Error(), "not json")
}

func TestCLIClientListImagesPodman(t *testing.T) {
	// podman renders the template fields with its own formatting, e.g. a space in the size
	runner := &fakeRunner{
		outputs: map[string]string{
			listCall("podman"): strings.Join([]string{
				`{"Repository":"localhost/svc-a","Tag":"1.0","CreatedAt":"2024-01-01 10:00:00 +0000 UTC","ID":"0b1edfbffd27","Size":"10 MB"}`,
				`{"Repository":"localhost/svc-a","Tag":"2.0","CreatedAt":"2024-02-01 09:00:00 +0100 CET","ID":"9f8e7d6c5b4a","Size":"12.5 MB"}`,
				`{"Repository":"docker.io/library/alpine","Tag":"3.20","CreatedAt":"2024-03-01 00:00:00 +0000 UTC","ID":"aaaaaaaaaaaa","Size":"8 MB"}`,
			}, "\n") + "\n",
		},
	}
	client := NewCLIClient("podman")
	client.Run = runner.Run

	records, warnings, err := client.ListImages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 3)
	assert.Equal(t, "localhost/svc-a:1.0", records[0].Reference())
	assert.Equal(t, int64(10_000_000), records[0].Size)
	assert.Equal(t, "localhost/svc-a:2.0 - 2024-02-01", records[1].String())
	assert.Equal(t, "docker.io/library/alpine:3.20", records[2].Reference())
}

func TestCLIClientListImagesEmpty(t *testing.T) {
	client := NewCLIClient("")
	client.Run = (&fakeRunner{}).Run

	records, warnings, err := client.ListImages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, warnings)
	assert.Equal(t, "docker", client.Binary)
}

func TestCLIClientListImagesFilters(t *testing.T) {
	runner := &fakeRunner{}
	client := NewCLIClient("nerdctl")
	client.References = []string{"svc-a", "svc-b:*"}
	client.Run = runner.Run

	_, _, err := client.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{listCall("nerdctl", "svc-a", "svc-b:*")}, runner.calls)
}

func TestCLIClientListImagesFailure(t *testing.T) {
	runner := &fakeRunner{
		errs: map[string]error{
			listCall("docker"): &CommandError{Stderr: "permission denied", Err: fmt.Errorf("exit status 1")},
		},
	}
	client := NewCLIClient("docker")
	client.Run = runner.Run

	_, _, err := client.ListImages(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrListingUnavailable))
	assert.Contains(t, err.Error(), "permission denied")
}

func TestCLIClientDeleteImage(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{
			"docker rmi svc-a:1": "Untagged: svc-a:1\nDeleted: sha256:abc\n",
		},
		errs: map[string]error{
			"docker rmi svc-a:2": &CommandError{Stderr: "Error response from daemon: conflict", Err: fmt.Errorf("exit status 1")},
		},
	}
	client := NewCLIClient("docker")
	client.Run = runner.Run

	out, err := client.DeleteImage(context.Background(), "svc-a", "1")
	require.NoError(t, err)
	assert.Equal(t, "Untagged: svc-a:1\nDeleted: sha256:abc", out)

	_, err = client.DeleteImage(context.Background(), "svc-a", "2")
	var deleteErr *DeleteError
	require.True(t, errors.As(err, &deleteErr))
	assert.Equal(t, "failed to delete image 'svc-a:2': Error response from daemon: conflict", err.Error())

	assert.Equal(t, []string{"docker rmi svc-a:1", "docker rmi svc-a:2"}, runner.calls)
}
