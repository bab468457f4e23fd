package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/1demilade/cocoa-disease-app/internal/logger"
)

const chunkSize = 8192

// Provisioner makes sure the model artifact is on local disk.
type Provisioner struct {
	Path   string
	URL    string
	Client *http.Client
}

func New(path, url string) *Provisioner {
	return &Provisioner{
		Path:   path,
		URL:    url,
		Client: http.DefaultClient,
	}
}

// Ensure returns the local path, downloading the artifact first when it is
// missing. There is no retry and no checksum; a failed download leaves no
// file behind and the caller is expected to abort.
func (p *Provisioner) Ensure(ctx context.Context) (string, error) {
	info, err := os.Stat(p.Path)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("model path %s is a directory", p.Path)
		}
		logger.Logger.Debug("model already present", zap.String("path", p.Path))
		return p.Path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat model: %w", err)
	}
	if p.URL == "" {
		return "", fmt.Errorf("model %s is missing and no download url is configured", p.Path)
	}

	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	logger.Logger.Info("downloading model", zap.String("url", p.URL), zap.String("path", p.Path))
	start := time.Now()

	n, err := p.download(ctx)
	if err != nil {
		return "", err
	}

	logger.Logger.Info("model downloaded",
		zap.String("path", p.Path),
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)))
	return p.Path, nil
}

func (p *Provisioner) download(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("download model: unexpected status %d", resp.StatusCode)
	}

	tmp := p.Path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	n, err := io.CopyBuffer(f, resp.Body, make([]byte, chunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("write model: %w", err)
	}

	if err := os.Rename(tmp, p.Path); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("move model into place: %w", err)
	}
	return n, nil
}
