package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leadflow/leadflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// workflowFile accepts either a single definition or a list under "workflows".
type workflowFile struct {
	Workflows []models.WorkflowDefinition `yaml:"workflows"`
}

// LoadWorkflows reads workflow definitions from a YAML or JSON file, or from
// every *.yaml, *.yml and *.json file of a directory, in name order.
func LoadWorkflows(path string) ([]models.WorkflowDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workflows path %s: %w", path, err)
	}

	files := []string{path}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflows directory %s: %w", path, err)
		}

		files = files[:0]

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".yaml", ".yml", ".json":
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}

		sort.Strings(files)
	}

	var definitions []models.WorkflowDefinition

	for _, file := range files {
		defs, err := loadWorkflowFile(file)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, defs...)
	}

	return definitions, nil
}

func loadWorkflowFile(path string) ([]models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var list workflowFile
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	if len(list.Workflows) > 0 {
		return list.Workflows, nil
	}

	var single models.WorkflowDefinition
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	if single.ID == "" {
		return nil, fmt.Errorf("workflow file %s has no workflow definitions", path)
	}

	return []models.WorkflowDefinition{single}, nil
}
