package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxPathLength is the longest path ValidatePath accepts.
const MaxPathLength = 255

// systemDirPrefixes are never acceptable path prefixes for a spawned process.
var systemDirPrefixes = []string{"/etc", "/proc", "/sys", "/dev"}

// reservedDeviceNames are Windows device names rejected case-insensitively as
// path elements regardless of platform, since resolved paths may end up on
// foreign filesystems.
var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidationResult aggregates the outcome of validating one or more strings.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Merge folds another result into this one. Validity is the conjunction.
func (v *ValidationResult) Merge(other ValidationResult) {
	if !other.Valid {
		v.Valid = false
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

var (
	allowedPrefixOnce sync.Once
	allowedPrefixes   []string
)

// allowedAbsolutePrefixes returns the prefixes under which absolute paths are
// acceptable: temp directories, the process working directory and the home
// directory. Computed once; only environment and process state are consulted,
// the filesystem itself is never touched.
func allowedAbsolutePrefixes() []string {
	allowedPrefixOnce.Do(func() {
		seen := make(map[string]bool)
		add := func(p string) {
			p = strings.TrimSuffix(p, "/")
			if p != "" && !seen[p] {
				seen[p] = true
				allowedPrefixes = append(allowedPrefixes, p)
			}
		}

		add(os.TempDir())
		add("/tmp")
		add("/var/tmp")
		if wd, err := os.Getwd(); err == nil {
			add(wd)
		}
		if home, err := os.UserHomeDir(); err == nil {
			add(home)
		}
	})
	return allowedPrefixes
}

// hasPrefixDir reports whether path is dir itself or lies underneath it.
func hasPrefixDir(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+"/")
}

// ValidatePath decides whether a resolved string is safe to hand to a spawned
// process as a path. It is a pure security boundary: the string is judged on
// its own, the filesystem is never consulted.
func ValidatePath(path string) ValidationResult {
	result := ValidationResult{Valid: true}

	if path == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "path is empty")
		return result
	}

	if strings.ContainsRune(path, 0) {
		result.Valid = false
		result.Errors = append(result.Errors, "path contains a null byte")
	}

	if len(path) > MaxPathLength {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("path exceeds %d characters", MaxPathLength))
	}

	if strings.Contains(path, "..") {
		result.Valid = false
		result.Errors = append(result.Errors, "path contains a '..' traversal sequence")
	}

	if strings.Contains(path, "//") {
		result.Valid = false
		result.Errors = append(result.Errors, "path contains a doubled '/'")
	}

	for _, c := range invalidValueChars {
		if strings.Contains(path, c) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("path contains invalid character %q", c))
		}
	}

	for _, prefix := range systemDirPrefixes {
		if hasPrefixDir(path, prefix) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("path is under system directory %s", prefix))
		}
	}

	for _, element := range strings.Split(path, "/") {
		// Device names are reserved with or without an extension (NUL, nul.txt).
		base := element
		if dot := strings.IndexByte(base, '.'); dot >= 0 {
			base = base[:dot]
		}
		if reservedDeviceNames[strings.ToUpper(base)] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("path contains reserved device name %q", element))
		}
	}

	if filepath.IsAbs(path) && result.Valid {
		allowed := false
		for _, prefix := range allowedAbsolutePrefixes() {
			if hasPrefixDir(path, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			result.Valid = false
			result.Errors = append(result.Errors, "absolute path is outside the allowed prefixes")
		}
	}

	// Shell expansion is never performed; flag the markers so operators can
	// spot templates that expected it.
	if strings.Contains(path, "~") {
		result.Warnings = append(result.Warnings, "path contains '~' which will not be expanded")
	}
	if strings.Contains(path, "$") {
		result.Warnings = append(result.Warnings, "path contains '$' which will not be expanded")
	}

	return result
}
