package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ensureDir creates the parent directory of path if needed.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// SaveUpload copies src into dir under a collision-free name derived from
// originalName and returns the stored path.
func SaveUpload(dir, originalName string, src io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	base := filepath.Base(originalName)
	if base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+base)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close upload file: %w", err)
	}
	return path, nil
}

// RemoveFileIfExists deletes path. A missing file is not an error.
// It reports whether a file was actually removed.
func RemoveFileIfExists(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// RemoveFilesBestEffort removes each path and logs failures without
// returning them. Empty paths are skipped.
func RemoveFilesBestEffort(log *zap.Logger, paths ...string) {
	for _, p := range paths {
		removed, err := RemoveFileIfExists(p)
		if err != nil {
			log.Warn("failed to delete file", zap.String("path", p), zap.Error(err))
			continue
		}
		if removed {
			log.Debug("deleted file", zap.String("path", p))
		}
	}
}

// ErrOutsideBase is returned when a file reference escapes its directory.
var ErrOutsideBase = errors.New("path escapes its base directory")

// ResolveLocalPath maps a detector-produced reference to a local file path.
// Absolute URLs keep only their path, which is resolved under baseDir, as are
// relative references. The result must lie inside baseDir.
func ResolveLocalPath(ref, baseDir string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", ref, err)
		}
		ref = strings.TrimPrefix(u.Path, "/")
		if ref == "" {
			return "", nil
		}
	}
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(baseDir, filepath.FromSlash(ref))
	}
	return ContainedPath(ref, baseDir)
}

// ContainedPath returns the absolute form of path, which must name a file
// strictly inside baseDir. Relative paths are taken from the working directory.
func ContainedPath(path, baseDir string) (string, error) {
	if path == "" {
		return "", nil
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", path, ErrOutsideBase)
	}
	return absPath, nil
}

// runFFmpegCommand executes an ffmpeg command and logs its output.
func runFFmpegCommand(ctx context.Context, log *zap.Logger, ffmpegPath string, args ...string) error {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	log.Debug("executing ffmpeg", zap.String("binary", ffmpegPath), zap.Strings("args", args))

	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Warn("ffmpeg command failed", zap.Error(err), zap.ByteString("output", output))
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}
	return nil
}

// GenerateThumbnail grabs one frame at timeInSeconds from a video.
// ffmpegExecutable should be the path to the ffmpeg binary (e.g. "ffmpeg").
func GenerateThumbnail(ctx context.Context, log *zap.Logger, videoPath, thumbnailPath string, timeInSeconds int, ffmpegExecutable string) error {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return fmt.Errorf("video input file does not exist: %s", videoPath)
	}
	if err := ensureDir(thumbnailPath); err != nil {
		return fmt.Errorf("failed to ensure thumbnail output directory: %w", err)
	}

	args := []string{
		"-ss", strconv.Itoa(timeInSeconds),
		"-i", videoPath,
		"-vframes", "1",
		"-y",
		thumbnailPath,
	}
	if err := runFFmpegCommand(ctx, log, ffmpegExecutable, args...); err != nil {
		if _, rmErr := RemoveFileIfExists(thumbnailPath); rmErr != nil {
			log.Warn("failed to remove incomplete thumbnail", zap.String("path", thumbnailPath), zap.Error(rmErr))
		}
		return err
	}
	return nil
}

// ThumbnailPathFor returns the thumbnail location for a stored video.
func ThumbnailPathFor(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + "_thumb.jpg"
}
