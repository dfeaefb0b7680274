package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lower-cased file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "webp":
		return true
	}
	return false
}

// SourceName derives a file-name stem for an image source: the base name of
// a path or URL, or the source kind plus a timestamp for captures
func SourceName(source string, now time.Time) string {
	var base string
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if u, err := url.Parse(source); err == nil {
			base = path.Base(u.Path)
		}
	case strings.HasPrefix(source, "data:"):
		base = ""
	case strings.Contains(source, "/"), strings.Contains(source, `\`), IsImageFile(source):
		base = filepath.Base(source)
	default:
		base = source + "-" + now.Format("20060102-150405")
	}

	if base == "/" || base == "." {
		base = ""
	}
	base = SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" {
		base = "region-" + now.Format("20060102-150405")
	}
	return base
}

// GenerateOutputFilename builds dir/prefix+stem+suffix.format
func GenerateOutputFilename(stem, outputDir, prefix, suffix, format string) string {
	if format == "" {
		format = "png"
	}
	outputName := fmt.Sprintf("%s%s%s.%s", prefix, stem, suffix, format)
	return filepath.Join(outputDir, outputName)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
