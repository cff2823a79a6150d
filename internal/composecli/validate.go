package composecli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
)

// Validate parses the rendered descriptor with the compose loader so that a
// bad render fails before any containers are started. The compose CLI would
// reject the file too, but by then the run record is already written and the
// failure path is the expensive one.
func Validate(composeFile, projectName string) error {
	data, err := os.ReadFile(composeFile)
	if err != nil {
		return fmt.Errorf("read descriptor %s: %w", composeFile, err)
	}

	env := make(composetypes.Mapping)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	details := composetypes.ConfigDetails{
		WorkingDir: filepath.Dir(composeFile),
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: composeFile, Content: data},
		},
		Environment: env,
	}
	_, err = loader.Load(details, func(o *loader.Options) {
		if projectName != "" {
			o.SetProjectName(projectName, true)
		}
		o.SkipValidation = false
	})
	if err != nil {
		return fmt.Errorf("invalid descriptor %s: %w", composeFile, err)
	}
	return nil
}
