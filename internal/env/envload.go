package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// EnvFile names an explicit dotenv file. It wins over every search
	// location and a missing file is an error.
	EnvFile = "REGSYNC_ENV_FILE"
	// DotEnv set to "off" disables dotenv loading entirely.
	DotEnv = "REGSYNC_DOTENV"

	dotEnvName  = ".env"
	userEnvDir  = "regsync"
	userEnvName = "regsync.env"
)

var (
	loadOnce   sync.Once
	loadedPath string
	loadErr    error
)

// Ensure loads regsync's dotenv file once. Lookup order is REGSYNC_ENV_FILE,
// then the first .env from the working directory up to the root, then
// $XDG_CONFIG_HOME/regsync/regsync.env. Variables already present in the
// process environment win over the file.
//
// Under go test only an explicit REGSYNC_ENV_FILE is honoured, so a
// developer-local .env never leaks into unit tests.
func Ensure() error {
	explicit := strings.TrimSpace(os.Getenv(EnvFile))
	if runningUnderGoTest() && explicit == "" {
		return nil
	}
	loadOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			loadErr = err
			return
		}
		path, err := resolveDotEnv(explicit, os.Getenv(DotEnv), wd, filepath.Join(xdg.ConfigHome, userEnvDir, userEnvName))
		if err != nil {
			loadErr = err
			log.Warn().Err(err).Msg("regsync: resolve dotenv failed")
			return
		}
		if path == "" {
			return
		}
		if err := godotenv.Load(path); err != nil {
			loadErr = err
			log.Warn().Err(err).Str("dotenv", path).Msg("regsync: load dotenv failed")
			return
		}
		loadedPath = path
		log.Debug().Str("dotenv", path).Msg("regsync: loaded dotenv")
	})
	return loadErr
}

// LoadedPath returns the dotenv path Ensure loaded, otherwise "".
func LoadedPath() string {
	return loadedPath
}

func resolveDotEnv(explicit, mode, wd, userFile string) (string, error) {
	if explicit != "" {
		if !isFile(explicit) {
			return "", errors.Errorf("%s=%s: no such file", EnvFile, explicit)
		}
		return explicit, nil
	}
	if strings.EqualFold(strings.TrimSpace(mode), "off") {
		return "", nil
	}
	for dir := wd; ; {
		candidate := filepath.Join(dir, dotEnvName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if userFile != "" && isFile(userFile) {
		return userFile, nil
	}
	return "", nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}
