package steps

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/automa-saga/automa"
	"github.com/serverkit/kitinstaller/pkg/software"
	"gopkg.in/yaml.v3"
)

// PrintWorkflowReport writes the workflow execution report in YAML format to reportPath, or to
// stdout when reportPath is empty.
var PrintWorkflowReport = func(report *automa.Report, reportPath string) error {
	b, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if reportPath == "" {
		fmt.Printf("Workflow Execution Report:\n%s\n", b)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(reportPath), dirPerm); err != nil {
		return software.NewFilesystemError(err, reportPath)
	}
	if err := os.WriteFile(reportPath, b, 0o644); err != nil {
		return software.NewFilesystemError(err, reportPath)
	}
	return nil
}
