package scenario

import (
	"go.uber.org/zap"

	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/sheetgen"
	"github.com/wesleyorama2/sheetload/internal/workbook"
)

// Lifecycle log messages.
const (
	StartMessage = "Starting Excel API load test..."
	StopMessage  = "Excel API load test completed."
)

// RegisterLifecycle logs the start and end of a run.
func RegisterLifecycle(events *harness.Events, logger *zap.Logger) {
	events.OnTestStart(func(r *harness.Runner) {
		logger.Info(StartMessage, zap.Int("users", r.TargetUsers()))
	})
	events.OnTestStop(func(r *harness.Runner) {
		logger.Info(StopMessage, zap.Int("users", r.SpawnedUsers()), zap.Duration("elapsed", r.Elapsed()))
	})
}

// Factory returns a harness.BehaviorFactory creating one ExcelUser per
// virtual user, each with its own client from newClient. With a non-zero
// seed the inputs of user id are reproducible.
func Factory(opts Options, newClient func(id int) *workbook.Client, seed uint64, logger *zap.Logger) harness.BehaviorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(id int) harness.Behavior {
		var genSeed uint64
		if seed != 0 {
			genSeed = seed + uint64(id)
		}
		return NewExcelUser(newClient(id), sheetgen.New(genSeed), opts, logger.With(zap.Int("user", id)))
	}
}
