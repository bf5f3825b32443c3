package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"report-desk/internal/domain"
)

const fallbackName = "report"

// TargetResolver picks the destination path for a suggested file name, for
// example through a native save dialog. An empty path means the user declined.
type TargetResolver func(ctx context.Context, suggestedName string) (string, error)

// Executor writes fetched artifacts to disk. Every save goes through a
// transient "*.download" file that is released on all exit paths.
type Executor struct {
	dir     string
	resolve TargetResolver
	logger  *zap.Logger

	mkdirAll   func(path string, perm os.FileMode) error
	createTemp func(dir, pattern string) (*os.File, error)
	rename     func(oldpath, newpath string) error
	remove     func(name string) error
	stat       func(name string) (os.FileInfo, error)
}

// NewExecutor saves into dir.
func NewExecutor(dir string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		dir:        dir,
		logger:     logger.Named("download"),
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		rename:     os.Rename,
		remove:     os.Remove,
		stat:       os.Stat,
	}
}

// WithResolver returns a copy that asks resolve for each destination.
func (e *Executor) WithResolver(resolve TargetResolver) *Executor {
	clone := *e
	clone.resolve = resolve
	return &clone
}

// Dir returns the default destination directory.
func (e *Executor) Dir() string {
	return e.dir
}

// Save writes artifact and returns its final path. Failures are DownloadFailed errors.
func (e *Executor) Save(ctx context.Context, artifact domain.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.WrapError(domain.KindDownloadFailed, "the download was cancelled", err)
	}

	name := SafeName(artifact.Filename)
	target, err := e.target(ctx, name)
	if err != nil {
		return "", err
	}

	if err := e.write(target, artifact.Data); err != nil {
		e.logger.Warn("save report", zap.String("path", target), zap.Error(err))
		return "", domain.WrapError(domain.KindDownloadFailed, "could not save the report", err)
	}

	e.logger.Info("report saved", zap.String("path", target), zap.Int("bytes", len(artifact.Data)))
	return target, nil
}

func (e *Executor) target(ctx context.Context, name string) (string, error) {
	if e.resolve != nil {
		path, err := e.resolve(ctx, name)
		if err != nil {
			return "", domain.WrapError(domain.KindDownloadFailed, "could not choose where to save the report", err)
		}
		if strings.TrimSpace(path) == "" {
			return "", domain.NewError(domain.KindDownloadFailed, "saving was cancelled")
		}
		if err := e.mkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", domain.WrapError(domain.KindDownloadFailed, "could not create the destination folder", err)
		}
		return path, nil
	}

	if strings.TrimSpace(e.dir) == "" {
		return "", domain.NewError(domain.KindDownloadFailed, "no download folder is configured")
	}
	if err := e.mkdirAll(e.dir, 0o755); err != nil {
		return "", domain.WrapError(domain.KindDownloadFailed, "could not create the download folder", err)
	}
	path, err := e.uniquePath(e.dir, name)
	if err != nil {
		return "", domain.WrapError(domain.KindDownloadFailed, "could not pick a file name", err)
	}
	return path, nil
}

// write stores data via a temp file in the destination directory and renames
// it into place. The temp file is closed and removed on every failure.
func (e *Executor) write(target string, data []byte) (err error) {
	tmp, err := e.createTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.download")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if err != nil {
			if removeErr := e.remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				e.logger.Warn("remove temporary file", zap.String("path", tmpPath), zap.Error(removeErr))
			}
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("set file mode: %w", err)
	}
	if err = e.rename(tmpPath, target); err != nil {
		return fmt.Errorf("move report into place: %w", err)
	}
	return nil
}

// uniquePath appends " (n)" before the extension until the name is free.
func (e *Executor) uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; n < 1000; n++ {
		_, err := e.stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
	return "", fmt.Errorf("too many files named %s in %s", name, dir)
}

// SafeName reduces a server-provided name to a single local path element.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		default:
			return r
		}
	}, name)
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ". ")
	if name == "" || name == "." || name == ".." {
		return fallbackName
	}
	return name
}

// NewExecutorForTests injects filesystem operations.
func NewExecutorForTests(
	dir string,
	mkdirAll func(path string, perm os.FileMode) error,
	createTemp func(dir, pattern string) (*os.File, error),
	rename func(oldpath, newpath string) error,
	remove func(name string) error,
	stat func(name string) (os.FileInfo, error),
) *Executor {
	e := NewExecutor(dir, nil)
	if mkdirAll != nil {
		e.mkdirAll = mkdirAll
	}
	if createTemp != nil {
		e.createTemp = createTemp
	}
	if rename != nil {
		e.rename = rename
	}
	if remove != nil {
		e.remove = remove
	}
	if stat != nil {
		e.stat = stat
	}
	return e
}
