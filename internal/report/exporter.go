package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/optalis/request-portal/internal/repository"
)

// Exporter produces Excel audit reports of workflow instances and their
// step execution history.
type Exporter struct {
	instances  *repository.InstanceRepository
	executions *repository.ExecutionRepository
	outputDir  string
	logger     *zap.Logger
}

// NewExporter creates a new report exporter
func NewExporter(
	instances *repository.InstanceRepository,
	executions *repository.ExecutionRepository,
	outputDir string,
	logger *zap.Logger,
) *Exporter {
	return &Exporter{
		instances:  instances,
		executions: executions,
		outputDir:  outputDir,
		logger:     logger,
	}
}

var instanceHeader = []string{
	"Instance ID", "Entity ID", "Entity Type", "Template ID",
	"Current Step", "Status", "Initiated By", "Initiated At", "Completed At",
}

var executionHeader = []string{
	"Instance ID", "Entity ID", "Sequence", "Role", "Actor ID",
	"Actor Name", "Decision", "Comments", "Step Date",
}

// Export writes the audit workbook to the configured output directory and
// returns the generated file path.
func (e *Exporter) Export(filter repository.ListFilter) (string, error) {
	f, err := e.build(filter)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(e.outputDir,
		fmt.Sprintf("workflow_audit_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	e.logger.Info("Audit report generated", zap.String("path", path))
	return path, nil
}

// ExportTo streams the audit workbook, used by the HTTP download endpoint.
func (e *Exporter) ExportTo(w io.Writer, filter repository.ListFilter) error {
	f, err := e.build(filter)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (e *Exporter) build(filter repository.ListFilter) (*excelize.File, error) {
	instances, err := e.instances.List(filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()

	const instanceSheet = "Instances"
	const executionSheet = "Executions"
	if err := f.SetSheetName("Sheet1", instanceSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(executionSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	e.setRow(f, instanceSheet, 1, toAny(instanceHeader))
	e.setRow(f, executionSheet, 1, toAny(executionHeader))

	execRow := 2
	for i, instance := range instances {
		completed := ""
		if instance.CompletedAt != nil {
			completed = instance.CompletedAt.Format(time.RFC3339)
		}
		e.setRow(f, instanceSheet, i+2, []interface{}{
			instance.ID,
			instance.EntityID,
			instance.EntityType,
			instance.TemplateID,
			instance.CurrentSequence,
			string(instance.Status),
			instance.InitiatedBy,
			instance.InitiatedAt.Format(time.RFC3339),
			completed,
		})

		history, err := e.executions.GetByInstanceID(instance.ID)
		if err != nil {
			f.Close()
			return nil, err
		}
		for _, exec := range history {
			e.setRow(f, executionSheet, execRow, []interface{}{
				exec.InstanceID,
				instance.EntityID,
				exec.SequenceNumber,
				exec.RoleName,
				exec.ActorID,
				exec.ActorName,
				string(exec.Decision),
				exec.Comments,
				exec.StepDate.Format(time.RFC3339),
			})
			execRow++
		}
	}

	return f, nil
}

func (e *Exporter) setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		e.logger.Warn("Failed to compute cell name", zap.Int("row", row), zap.Error(err))
		return
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		e.logger.Warn("Failed to set sheet row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
	}
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
