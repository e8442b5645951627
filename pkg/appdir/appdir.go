// Package appdir owns the per-user state directory where the log and
// restriction journal databases live.
package appdir

import (
	"log"
	"os"
	"path"
)

// envOverride relocates the state directory, mainly for packaged installs
// that want /var/lib instead of the invoking user's home.
const envOverride = "NETCTRL_DIR"

var appDirCache string

func AppDir() string {
	if appDirCache == "" {
		if dir := os.Getenv(envOverride); dir != "" {
			appDirCache = dir
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("%v", err)
			}
			appDirCache = path.Join(home, ".netctrl-go")
		}
		if _, err := os.Stat(appDirCache); os.IsNotExist(err) {
			os.MkdirAll(appDirCache, 0755)
		}
	}
	return appDirCache
}

// File returns the path of a state file inside the app directory.
func File(name string) string {
	return path.Join(AppDir(), name)
}
