package presenter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jupark12/contract-extract/client"
	"github.com/jupark12/contract-extract/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDownloader struct {
	mu       sync.Mutex
	calls    int
	artifact *client.Artifact
	err      error
}

func (d *countingDownloader) Download(ctx context.Context, taskID string) (*client.Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.artifact, nil
}

func TestDownloadIsIdempotent(t *testing.T) {
	d := &countingDownloader{artifact: &client.Artifact{Filename: "contract_data_j1.xlsx", Data: []byte("wb")}}
	pr := New(d).Present("j1", models.JobResult{ProcessedFiles: 3, TotalFiles: 3, DownloadURL: "/api/download/j1"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := pr.Download(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, []byte("wb"), a.Data)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, d.calls)
	assert.Equal(t, "Processed 3 of 3 files", pr.Summary())
}

func TestDownloadErrorIsNotCached(t *testing.T) {
	d := &countingDownloader{err: errors.New("boom")}
	pr := New(d).Present("j1", models.JobResult{})

	_, err := pr.Download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "j1")

	d.err = nil
	d.artifact = &client.Artifact{Data: []byte("ok")}
	a, err := pr.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), a.Data)
	assert.Equal(t, 2, d.calls)
}

func TestSaveToUsesServedFilename(t *testing.T) {
	dir := t.TempDir()
	d := &countingDownloader{artifact: &client.Artifact{Filename: "../../evil/report.xlsx", Data: []byte("wb")}}
	pr := New(d).Present("j1", models.JobResult{})

	path, err := pr.SaveTo(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.xlsx"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("wb"), data)
}

func TestSaveToFallsBackToJobName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	d := &countingDownloader{artifact: &client.Artifact{Data: []byte("wb")}}
	pr := New(d).Present("j7", models.JobResult{})

	path, err := pr.SaveTo(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "contract_data_j7.xlsx"), path)
}

func TestResetRunsHookAndDropsArtifact(t *testing.T) {
	resets := 0
	d := &countingDownloader{artifact: &client.Artifact{Data: []byte("wb")}}
	p := New(d, WithResetHook(func() { resets++ }))
	pr := p.Present("j1", models.JobResult{})

	_, err := pr.Download(context.Background())
	require.NoError(t, err)
	pr.Reset()
	assert.Equal(t, 1, resets)

	_, err = pr.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.calls)
}

func TestPresentFailure(t *testing.T) {
	resets := 0
	p := New(&countingDownloader{}, WithResetHook(func() { resets++ }))
	failure := &models.ProcessingFailure{TaskID: "j1", Reason: "Error processing PDFs"}

	fp := p.PresentFailure("j1", failure)

	assert.Equal(t, "processing failed for task j1: Error processing PDFs", fp.Message())
	fp.Reset()
	assert.Equal(t, 1, resets)
	assert.Equal(t, "Processing failed", p.PresentFailure("j2", nil).Message())
}
