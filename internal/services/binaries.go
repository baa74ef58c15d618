package services

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// findBinary resolves an external tool. An explicit path wins, then the
// directory of the running executable, then PATH, then extra directories.
func findBinary(explicit, name string, extraDirs ...string) (string, bool) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if strings.ContainsRune(explicit, filepath.Separator) {
			return explicit, isRunnableFile(explicit)
		}
		name = explicit
	}

	candidates := []string{name}
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		candidates = append(candidates, name+".exe")
	}

	dirs := []string{}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)
	dirs = append(dirs, extraDirs...)
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	}
	dirs = append(dirs, "/opt/homebrew/bin", "/usr/local/bin")

	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		for _, c := range candidates {
			local := filepath.Join(dir, c)
			if isRunnableFile(local) {
				return local, true
			}
		}
	}
	return "", false
}

func isRunnableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
