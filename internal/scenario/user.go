// Package scenario defines the simulated workbook user: it logs in, creates a
// workbook to work on and then edits, charts, opens and saves it.
package scenario

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/sheetgen"
	"github.com/wesleyorama2/sheetload/internal/workbook"
)

// TaskNames lists the weighted tasks of an ExcelUser.
var TaskNames = []string{
	workbook.OpCreateWorkbook,
	workbook.OpOpenWorkbook,
	workbook.OpEditCell,
	workbook.OpAddFormula,
	workbook.OpCreateChart,
	workbook.OpSaveWorkbook,
}

// DefaultWeights returns the default task mix.
func DefaultWeights() map[string]int {
	return map[string]int{
		workbook.OpCreateWorkbook: 1,
		workbook.OpOpenWorkbook:   3,
		workbook.OpEditCell:       5,
		workbook.OpAddFormula:     2,
		workbook.OpCreateChart:    1,
		workbook.OpSaveWorkbook:   2,
	}
}

// Options configure an ExcelUser.
type Options struct {
	Credentials     workbook.Credentials
	Worksheet       string
	InitialWorkbook string

	// AdoptCreatedWorkbook makes create_workbook retarget the session at the
	// workbook it created.
	AdoptCreatedWorkbook bool

	// Weights override DefaultWeights per task name. Missing names keep
	// their default; 0 disables a task.
	Weights map[string]int
}

// DefaultOptions returns the options of the stock scenario.
func DefaultOptions() Options {
	return Options{
		Credentials:     workbook.Credentials{Username: "testuser", Password: "testpassword"},
		Worksheet:       "Sheet1",
		InitialWorkbook: "TestWorkbook",
	}
}

// ValidateWeights rejects unknown task names and negative weights.
func ValidateWeights(weights map[string]int) error {
	defaults := DefaultWeights()
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := defaults[name]; !ok {
			return fmt.Errorf("unknown task %q", name)
		}
		if weights[name] < 0 {
			return fmt.Errorf("task %q: weight must be >= 0, got %d", name, weights[name])
		}
	}
	return nil
}

// ExcelUser is one simulated user session. It implements harness.Behavior and
// is driven by a single goroutine.
type ExcelUser struct {
	client *workbook.Client
	gen    *sheetgen.Generator
	logger *zap.Logger
	opts   Options

	workbookID string
}

// NewExcelUser creates a session that talks through client and draws its
// random inputs from gen.
func NewExcelUser(client *workbook.Client, gen *sheetgen.Generator, opts Options, logger *zap.Logger) *ExcelUser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelUser{
		client: client,
		gen:    gen,
		logger: logger,
		opts:   opts,
	}
}

// WorkbookID returns the workbook the session works on, or "" if none.
func (u *ExcelUser) WorkbookID() string {
	return u.workbookID
}

// OnStart logs in and creates the session's workbook. Failures are logged
// and returned; the workbook stays unset so later tasks fail on their own.
func (u *ExcelUser) OnStart(ctx context.Context) error {
	if resp, err := u.client.Login(ctx, u.opts.Credentials); err != nil {
		_ = u.failed(ctx, "login failed", resp, err)
	}

	resp, err := u.client.CreateWorkbook(ctx, u.opts.InitialWorkbook)
	if err != nil {
		return fmt.Errorf("on_start: %w", u.failed(ctx, "failed to create initial workbook", resp, err))
	}

	u.workbookID = resp.ID()
	u.logger.Debug("session ready", zap.String("workbook", u.workbookID))
	return nil
}

// Tasks returns the weighted task set.
func (u *ExcelUser) Tasks() []harness.Task {
	weights := DefaultWeights()
	for name, w := range u.opts.Weights {
		weights[name] = w
	}

	runs := map[string]func(context.Context) error{
		workbook.OpCreateWorkbook: u.CreateWorkbook,
		workbook.OpOpenWorkbook:   u.OpenWorkbook,
		workbook.OpEditCell:       u.EditCell,
		workbook.OpAddFormula:     u.AddFormula,
		workbook.OpCreateChart:    u.CreateChart,
		workbook.OpSaveWorkbook:   u.SaveWorkbook,
	}

	tasks := make([]harness.Task, 0, len(TaskNames))
	for _, name := range TaskNames {
		tasks = append(tasks, harness.Task{Name: name, Weight: weights[name], Run: runs[name]})
	}
	return tasks
}

// CreateWorkbook creates an extra, randomly named workbook.
func (u *ExcelUser) CreateWorkbook(ctx context.Context) error {
	resp, err := u.client.CreateWorkbook(ctx, u.gen.WorkbookName())
	if err != nil {
		return u.failed(ctx, "failed to create workbook", resp, err)
	}

	id := resp.ID()
	u.logger.Info("created workbook", zap.String("id", id))
	if u.opts.AdoptCreatedWorkbook && id != "" {
		u.workbookID = id
	}
	return nil
}

// OpenWorkbook fetches the session's workbook.
func (u *ExcelUser) OpenWorkbook(ctx context.Context) error {
	resp, err := u.client.GetWorkbook(ctx, u.workbookID)
	if err != nil {
		return u.failed(ctx, "failed to open workbook", resp, err)
	}
	u.logger.Info("opened workbook", zap.String("id", u.workbookID))
	return nil
}

// EditCell writes a random value into a random cell.
func (u *ExcelUser) EditCell(ctx context.Context) error {
	addr := u.gen.CellAddress()
	value := u.gen.CellValue()

	resp, err := u.client.SetCellValue(ctx, u.workbookID, u.opts.Worksheet, addr, value)
	if err != nil {
		return u.failed(ctx, "failed to edit cell", resp, err)
	}
	u.logger.Info("edited cell", zap.String("cell", addr), zap.Int("value", value))
	return nil
}

// AddFormula writes a random SUM formula into a random cell.
func (u *ExcelUser) AddFormula(ctx context.Context) error {
	addr := u.gen.CellAddress()
	formula := u.gen.SumFormula()

	resp, err := u.client.SetCellFormula(ctx, u.workbookID, u.opts.Worksheet, addr, formula)
	if err != nil {
		return u.failed(ctx, "failed to add formula", resp, err)
	}
	u.logger.Info("added formula", zap.String("cell", addr), zap.String("formula", formula))
	return nil
}

// CreateChart adds a chart with random data to the worksheet.
func (u *ExcelUser) CreateChart(ctx context.Context) error {
	chart := u.gen.Chart()

	resp, err := u.client.CreateChart(ctx, u.workbookID, u.opts.Worksheet, chart)
	if err != nil {
		return u.failed(ctx, "failed to create chart", resp, err)
	}
	u.logger.Info("created chart", zap.String("id", resp.ID()), zap.String("type", chart.Type))
	return nil
}

// SaveWorkbook saves the session's workbook.
func (u *ExcelUser) SaveWorkbook(ctx context.Context) error {
	resp, err := u.client.SaveWorkbook(ctx, u.workbookID)
	if err != nil {
		return u.failed(ctx, "failed to save workbook", resp, err)
	}
	u.logger.Info("saved workbook", zap.String("id", u.workbookID))
	return nil
}

func (u *ExcelUser) failed(ctx context.Context, msg string, resp *workbook.Response, err error) error {
	if ctx.Err() == nil {
		u.logger.Warn(msg, zap.Error(err), zap.String("body", resp.Text()))
	}
	return err
}
