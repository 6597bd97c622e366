package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads .env files once per process. ENV_FILE names an explicit
// file; otherwise every .env between this package and the repository root is
// read, nearest first. NO_DOTENV=1 disables loading and DOTENV_OVERLOAD=1 lets
// file values replace variables already set.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	overload := os.Getenv("DOTENV_OVERLOAD") == "1"
	load := func(path string) {
		if !fileExists(path) {
			return
		}
		if overload {
			_ = godotenv.Overload(path)
		} else {
			_ = godotenv.Load(path)
		}
	}

	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		load(envFile)
		return
	}
	if dir, ok := sourceDir(); ok {
		walkToRoot(dir, func(d string) { load(filepath.Join(d, ".env")) })
		return
	}
	load(".env")
}
