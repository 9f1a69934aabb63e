package logger

import (
	"time"
)

// OperationLogger logs the lifecycle of one named operation: start, steps
// and a final outcome with elapsed time.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
	now       func() time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithField("operation", operation),
		operation: operation,
		fields:    make(Fields),
		now:       time.Now,
	}
	ol.startTime = ol.now()

	ol.logger.Debug("Starting operation")
	return ol
}

// WithField adds a field to every later line of this operation.
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithFields(ol.fields).WithField("step", step).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(ol.fields).WithFields(Fields{
		"duration": ol.now().Sub(ol.startTime).String(),
		"status":   "success",
	}).Info(message)
}

// Failure completes the operation with an error
func (ol *OperationLogger) Failure(err error, message string) {
	ol.logger.WithError(err).WithFields(ol.fields).WithFields(Fields{
		"duration": ol.now().Sub(ol.startTime).String(),
		"status":   "error",
	}).Error(message)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	ol := NewOperationLogger(operation, logger)

	if err := fn(); err != nil {
		ol.Failure(err, "Operation failed")
		return err
	}

	ol.Success("Operation completed")
	return nil
}
