package common

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := os.UserHomeDir(); err == nil {
		return usr
	}
	return ""
}

func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "ContestD")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "ContestD")
		} else {
			return filepath.Join(home, ".contestd")
		}
	}
	return ""
}

// NowMillis is the millisecond wall clock used for contest deadlines
// and scheduled-vote target times.
func NowMillis() uint64 {
	return uint64(time.Now().UnixNano() / int64(time.Millisecond))
}
