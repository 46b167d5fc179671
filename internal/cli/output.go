package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/state"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// IsJSON возвращает true в режиме --json.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Report выводит шаги отчёта таблицей и строку итога в stderr.
func (o *Output) Report(report *domain.ExecutionReport) {
	headers := []string{"STEP", "MODULE", "STATUS", "DURATION", "ERROR"}
	rows := make([][]string, 0, len(report.Steps)+len(report.Compensations))
	for _, s := range report.Steps {
		rows = append(rows, outcomeRow(s))
	}
	for _, s := range report.Compensations {
		row := outcomeRow(s)
		row[0] = "(compensate) " + row[0]
		rows = append(rows, row)
	}
	o.Table(headers, rows)

	summary := fmt.Sprintf("Run %s: %s in %s", report.RunID, report.Status, report.Duration().Round(time.Millisecond))
	if report.FailedStep != "" {
		summary += ", failed step: " + report.FailedStep
	}
	o.Success(summary)
}

// Values выводит таблицу значений контекста, ключи по алфавиту.
func (o *Output) Values(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, formatValue(values[k])}
	}
	o.Table([]string{"KEY", "VALUE"}, rows)
}

// History выводит журнал изменений контекста.
func (o *Output) History(history []state.Change) {
	rows := make([][]string, len(history))
	for i, c := range history {
		rows[i] = []string{
			fmt.Sprintf("%d", c.Seq),
			string(c.Op),
			c.Key,
			formatValue(c.OldValue),
			formatValue(c.NewValue),
			c.Actor,
		}
	}
	o.Table([]string{"SEQ", "OP", "KEY", "OLD", "NEW", "ACTOR"}, rows)
}

func outcomeRow(s domain.StepOutcome) []string {
	errMsg := ""
	if s.Error != nil {
		errMsg = fmt.Sprintf("%s: %s", s.Error.Kind, s.Error.Message)
	}
	return []string{s.Step, s.Module, string(s.Status), s.Duration.Round(time.Microsecond).String(), errMsg}
}

// formatValue печатает значение в компактном JSON.
func formatValue(v any) string {
	if v == nil {
		return "-"
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
