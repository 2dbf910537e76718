package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Load loads a configuration from a YAML or JSON file on the OS filesystem
func Load(filePath string, config interface{}) error {
	return LoadFs(afero.NewOsFs(), filePath, config)
}

// LoadFs loads a configuration from fs. JSON documents are accepted as
// YAML flow mappings.
func LoadFs(fs afero.Fs, filePath string, config interface{}) error {
	data, err := afero.ReadFile(fs, filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Substitute environment variables
	content := substituteEnvVars(string(data))
	if strings.HasPrefix(strings.TrimSpace(content), "{") {
		// Raw tabs cannot occur inside valid JSON strings, and YAML rejects
		// them as indentation.
		content = strings.ReplaceAll(content, "\t", "  ")
	}

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
