package converter

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a conversion when LibreOffice.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// LibreOffice converts documents to PDF with a headless soffice process.
//
// Every call uses its own user profile inside outDir; soffice does not run
// two instances on one profile.
type LibreOffice struct {
	Binary  string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (l *LibreOffice) Name() string { return "libreoffice" }

func (l *LibreOffice) Convert(ctx context.Context, src, outDir string) (string, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	profile, err := filepath.Abs(filepath.Join(outDir, ".lo-profile"))
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to resolve profile directory")
	}

	args := []string{
		"--headless",
		"--norestore",
		"-env:UserInstallation=file://" + filepath.ToSlash(profile),
		"--convert-to", "pdf",
		"--outdir", outDir,
		src,
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, l.Binary, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	l.logger().Debug("starting conversion", zap.String("binary", l.Binary), zap.String("src", src))

	err = cmd.Run()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", pkgerrors.Wrapf(ErrConversionTimeout, "after %s", timeout)
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil && (errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)):
		return "", pkgerrors.Wrapf(ErrConverterUnavailable, "%s: %v", l.Binary, err)
	case err != nil:
		return "", pkgerrors.Wrapf(ErrConversionFailed, "%v: %s", err, strings.TrimSpace(output.String()))
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(out); err != nil {
		return "", pkgerrors.Wrapf(ErrConversionFailed, "no output produced: %s", strings.TrimSpace(output.String()))
	}

	l.logger().Debug("conversion finished", zap.String("out", out), zap.Duration("took", time.Since(start)))
	return out, nil
}

func (l *LibreOffice) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
