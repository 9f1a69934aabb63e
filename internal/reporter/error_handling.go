package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"treasury-reconciler/internal/store"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with output fallbacks. Reports
// are rendered in memory first so a failed render never leaves a partial file.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, err
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// WriteReport renders snap and writes it to path, or to fallback when path
// is empty. If the render fails for a non-console format, a console report
// with a notice is written instead. If the file cannot be written, a
// _backup file next to it is tried.
func (srg *SafeReportGenerator) WriteReport(snap *store.Snapshot, path string, fallback io.Writer) error {
	if snap == nil {
		return errors.Validation(errors.CodeMissingField, "snapshot", nil)
	}
	if path == "" && fallback == nil {
		return errors.Validation(errors.CodeMissingField, "output", nil).
			WithSuggestion("Provide an output file or writer")
	}

	log := srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": describeOutput(path),
	})
	log.Info("Starting report generation")

	content, err := srg.render(snap)
	if err != nil {
		log.WithError(err).Error("Report generation failed")
		return err
	}

	if path == "" {
		if _, err := fallback.Write(content); err != nil {
			return srg.wrapGenerationError(err)
		}
		log.Info("Report generation completed")
		return nil
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		if !isFileError(err) {
			return srg.wrapGenerationError(err)
		}
		backup := backupPath(path)
		log.WithError(err).WithField("backup_file", backup).Warn("Writing report failed, trying backup location")
		if berr := os.WriteFile(backup, content, 0o644); berr != nil {
			return errors.Wrap(berr, errors.CategoryInternal, errors.CodeUnexpectedError,
				fmt.Sprintf("both primary and backup output failed: primary=%v", err)).
				WithContext("file", path)
		}
		fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", path, backup)
		return nil
	}

	log.Info("Report generation completed")
	return nil
}

func (srg *SafeReportGenerator) render(snap *store.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	err := srg.GenerateReport(snap, &buf)
	if err == nil {
		return buf.Bytes(), nil
	}
	if srg.config.Format == FormatConsole {
		return nil, srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).WithField("fallback_format", FormatConsole).Warn("Primary report generation failed, attempting fallback")
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackGenerator, ferr := NewReportGenerator(&fallbackConfig)
	if ferr != nil {
		return nil, srg.wrapGenerationError(err)
	}

	buf.Reset()
	fmt.Fprintf(&buf, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(&buf, "Original error: %v\n\n", err)
	if ferr := fallbackGenerator.GenerateReport(snap, &buf); ferr != nil {
		return nil, errors.Wrap(ferr, errors.CategoryInternal, errors.CodeUnexpectedError,
			fmt.Sprintf("both primary and fallback generation failed: primary=%v", err))
	}
	return buf.Bytes(), nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "report generation failed").
		WithSuggestion("Check the output destination and report format settings")
}

func isFileError(err error) bool {
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}

func backupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func describeOutput(path string) string {
	if path == "" {
		return "stdout"
	}
	return "file:" + path
}
