// Package sheetgen produces randomized spreadsheet inputs for simulated users:
// cell addresses, cell values, SUM formulas, chart payloads and workbook names.
package sheetgen

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/xuri/excelize/v2"
)

// Bounds of the generated inputs.
const (
	MinColumn = 1 // A
	MaxColumn = 10
	MinRow    = 1
	MaxRow    = 100

	MinCellValue = 1
	MaxCellValue = 1000

	ChartPoints   = 5
	MinChartValue = 1
	MaxChartValue = 100

	// SUM ranges always span rows 1 through 10 of the chosen columns.
	formulaFirstRow = 1
	formulaLastRow  = 10
)

// ChartTypes are the chart kinds a generated chart may use.
var ChartTypes = []string{"bar", "line", "pie"}

// ChartLabels label the data points of every generated chart.
var ChartLabels = []string{"A", "B", "C", "D", "E"}

// Chart is the request body of a create-chart call.
type Chart struct {
	Type string    `json:"type"`
	Data ChartData `json:"data"`
}

// ChartData holds the labeled series of a chart.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is one numeric series.
type Dataset struct {
	Data []int `json:"data"`
}

// Generator produces random inputs. It is not safe for concurrent use;
// each simulated user owns one.
type Generator struct {
	faker *gofakeit.Faker
}

// New returns a generator. A zero seed picks a random one.
func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Column returns a random column name in A..J.
func (g *Generator) Column() string {
	name, err := excelize.ColumnNumberToName(g.faker.Number(MinColumn, MaxColumn))
	if err != nil {
		// Unreachable for columns inside the A..J bounds.
		panic(err)
	}
	return name
}

// CellAddress returns a random address with column in A..J and row in 1..100.
func (g *Generator) CellAddress() string {
	addr, err := excelize.CoordinatesToCellName(g.faker.Number(MinColumn, MaxColumn), g.faker.Number(MinRow, MaxRow))
	if err != nil {
		panic(err)
	}
	return addr
}

// CellValue returns a random integer cell value.
func (g *Generator) CellValue() int {
	return g.faker.Number(MinCellValue, MaxCellValue)
}

// SumFormula returns a formula like =SUM(C1:H10) over two random columns.
func (g *Generator) SumFormula() string {
	return fmt.Sprintf("=SUM(%s%d:%s%d)", g.Column(), formulaFirstRow, g.Column(), formulaLastRow)
}

// Chart returns a fresh chart payload with five random data points.
func (g *Generator) Chart() Chart {
	points := make([]int, ChartPoints)
	for i := range points {
		points[i] = g.faker.Number(MinChartValue, MaxChartValue)
	}

	labels := make([]string, len(ChartLabels))
	copy(labels, ChartLabels)

	return Chart{
		Type: g.faker.RandomString(ChartTypes),
		Data: ChartData{
			Labels:   labels,
			Datasets: []Dataset{{Data: points}},
		},
	}
}

// WorkbookName returns a name like Workbook_4821.
func (g *Generator) WorkbookName() string {
	return fmt.Sprintf("Workbook_%d", g.faker.Number(1000, 9999))
}
