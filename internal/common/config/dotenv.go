package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadEnvFile reads KEY=value pairs from a .env file into the process
// environment. Real environment variables win over file entries, so a
// deployment can always override the local file. Blank lines and lines
// starting with # are skipped; an optional "export " prefix and
// surrounding quotes on the value are stripped.
func LoadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// LoadEnvFileIfExists is LoadEnvFile for an optional file: a missing
// file is not an error.
func LoadEnvFileIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return LoadEnvFile(path)
}
