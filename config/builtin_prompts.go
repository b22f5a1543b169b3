package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DeployResult lists what Deploy did, with paths relative to the target.
type DeployResult struct {
	Deployed []string
	// Skipped files already existed.
	Skipped []string
	Errors  []error
}

// Deploy writes the starter configuration and its prompts into targetDir.
// Existing files are kept unless force is set.
func Deploy(targetDir string, force bool) (*DeployResult, error) {
	promptsDir := filepath.Join(targetDir, PromptsDir)
	if err := os.MkdirAll(promptsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", promptsDir, err)
	}

	result := &DeployResult{}
	deploy := func(name string, content []byte) {
		dst := filepath.Join(targetDir, name)
		if _, err := os.Stat(dst); err == nil && !force {
			result.Skipped = append(result.Skipped, name)
			return
		}
		if err := os.WriteFile(dst, content, 0644); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to write %s: %w", name, err))
			return
		}
		result.Deployed = append(result.Deployed, name)
	}

	deploy(ConfigFileName, DefaultConfigYAML)

	prompts, err := ListPrompts()
	if err != nil {
		return nil, err
	}
	for _, name := range prompts {
		content, err := fs.ReadFile(PromptsFS, PromptsDir+"/"+name)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to read %s: %w", name, err))
			continue
		}
		deploy(filepath.Join(PromptsDir, name), content)
	}

	return result, nil
}

// ListPrompts returns the embedded prompt file names.
func ListPrompts() ([]string, error) {
	entries, err := fs.ReadDir(PromptsFS, PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded prompts directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
