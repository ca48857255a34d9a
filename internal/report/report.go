// Package report exports a learner's course progress as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/sequencer"
)

const (
	ModulesSheet = "Modules"
	LessonsSheet = "Lessons"
)

var (
	moduleHeader = []any{"Module", "Title", "Locked", "Completed", "Total", "Percentage"}
	lessonHeader = []any{"Module", "Lesson", "Title", "Kind", "Locked", "Completed"}
)

// Build lays out the module summary and the per-lesson completion sheet.
func Build(cat *course.Catalog, store progress.Store) (*excelize.File, error) {
	summary, err := sequencer.Summarize(cat, store)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ModulesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(LessonsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	if err := writeModules(f, summary); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeLessons(f, cat, store); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteXLSX writes the progress workbook to w.
func WriteXLSX(w io.Writer, cat *course.Catalog, store progress.Store) error {
	f, err := Build(cat, store)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeModules(f *excelize.File, summary sequencer.CourseSummary) error {
	rows := [][]any{moduleHeader}
	for _, m := range summary.Modules {
		rows = append(rows, []any{
			m.ID, m.Title, yesNo(m.Locked),
			m.Progress.CompletedCount, m.Progress.TotalCount, m.Progress.Percentage,
		})
	}
	rows = append(rows, []any{
		"", "Course total", "",
		summary.CompletedLessons, summary.TotalLessons, summary.Percentage,
	})
	return writeRows(f, ModulesSheet, rows)
}

func writeLessons(f *excelize.File, cat *course.Catalog, store progress.Store) error {
	rows := [][]any{lessonHeader}
	for _, m := range cat.AllModules() {
		for _, l := range m.Lessons {
			done, err := store.IsLessonComplete(l.ID)
			if err != nil {
				return fmt.Errorf("lesson %s: %w", l.ID, err)
			}
			rows = append(rows, []any{
				m.ID, l.ID, l.Title, string(l.Kind), yesNo(m.Locked || l.Locked), yesNo(done),
			})
		}
	}
	return writeRows(f, LessonsSheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, bold)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
