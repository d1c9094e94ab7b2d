// Package report renders owner-facing spreadsheets of quiz submissions.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"quiz-access-service/internal/domain"
)

const (
	SummarySheet = "Submissions"
	ItemsSheet   = "Answers"
)

var (
	summaryHeader = []interface{}{"Submitter", "Attempt", "Score", "Total marks", "Percentage", "Submitted at"}
	itemsHeader   = []interface{}{"Submitter", "Attempt", "Question", "Type", "Correct", "Earned", "Marks", "Pending review"}
)

// WriteSubmissions writes one summary row per submission and one row per graded item.
func WriteSubmissions(w io.Writer, quiz domain.Quiz, submissions []domain.Submission) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := writeRow(f, SummarySheet, 1, summaryHeader); err != nil {
		return err
	}
	if err := writeRow(f, ItemsSheet, 1, itemsHeader); err != nil {
		return err
	}

	itemRow := 2
	for i, s := range submissions {
		if err := writeRow(f, SummarySheet, i+2, []interface{}{
			s.SubmitterID, s.AttemptNumber, s.Score, s.TotalMarks, s.Percentage, s.SubmittedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
		for _, item := range s.Items {
			if err := writeRow(f, ItemsSheet, itemRow, []interface{}{
				s.SubmitterID, s.AttemptNumber, item.Text, string(item.Type), item.Correct, item.Earned, item.Marks, item.PendingReview,
			}); err != nil {
				return err
			}
			itemRow++
		}
	}

	for _, sheet := range []string{SummarySheet, ItemsSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}
	if err := f.SetColWidth(ItemsSheet, "C", "C", 60); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	f.SetDocProps(&excelize.DocProperties{Title: quiz.Title, Creator: "quiz-access-service"})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName is the attachment name for a quiz export.
func FileName(quiz domain.Quiz) string {
	return fmt.Sprintf("quiz-%s-submissions.xlsx", quiz.ID)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
