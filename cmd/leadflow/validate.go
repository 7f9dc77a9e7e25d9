package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadflow/leadflow/pkg/actions"
	"github.com/leadflow/leadflow/pkg/conditions"
	"github.com/leadflow/leadflow/pkg/config"
	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/workflow"
)

// validateWorkflows registers every definition of path on a throwaway engine
// and reports all rejections at once.
func validateWorkflows(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	definitions, err := config.LoadWorkflows(path)
	if err != nil {
		return 0, err
	}

	store := leads.NewMemoryStore()

	engine, err := workflow.NewEngine(actions.NewExecutor(nil, store), conditions.NewEvaluator(store))
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = engine.Shutdown(ctx)
	}()

	var errs []error

	for i := range definitions {
		if err := engine.RegisterWorkflow(ctx, &definitions[i]); err != nil {
			errs = append(errs, fmt.Errorf("workflow %q: %w", definitions[i].ID, err))
		}
	}

	return len(definitions) - len(errs), errors.Join(errs...)
}
