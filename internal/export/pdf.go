package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// TODO: register a CJK font via AddUTF8Font so the Chinese labels render
// properly; the built-in core fonts only cover latin glyphs.

// TablePDF renders rows as a titled table with a grey header band.
func TablePDF(title string, headers []string, rows []map[string]string) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(51, 51, 51)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 8, noDataPlaceholder, "", 1, "L", false, 0, "")
		return pdfBytes(pdf)
	}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colWidth := (pageWidth - left - right) / float64(len(headers))

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(245, 245, 245)
	for _, header := range headers {
		pdf.CellFormat(colWidth, 9, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetFillColor(245, 245, 220)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range rows {
		for _, header := range headers {
			pdf.CellFormat(colWidth, 8, row[header], "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdfBytes(pdf)
}

// TrainingPlanPDF renders a generated training plan: title, plan facts,
// weekly schedule, daily plans and suggestions.
func TrainingPlanPDF(planData map[string]any) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	title := "训练计划"
	if t, ok := planData["title"].(string); ok && t != "" {
		title = t
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(51, 51, 51)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	if duration := planData["duration"]; duration != nil {
		pdf.CellFormat(0, 7, fmt.Sprintf("计划时长：%v周", duration), "", 1, "L", false, 0, "")
	}
	if goal, ok := planData["goal"].(string); ok && goal != "" {
		pdf.CellFormat(0, 7, fmt.Sprintf("训练目标：%s", goal), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if weeks, ok := planData["weekly_schedule"].([]any); ok && len(weeks) > 0 {
		sectionHeading(pdf, "每周训练安排")
		for _, w := range weeks {
			week, ok := w.(map[string]any)
			if !ok {
				continue
			}
			pdf.MultiCell(0, 6, fmt.Sprintf(
				"第%v周：训练日 %s，休息日 %s",
				week["week"],
				joinAny(week["training_days"]),
				joinAny(week["rest_days"]),
			), "", "L", false)
		}
		pdf.Ln(4)
	}

	if days, ok := planData["daily_plans"].([]any); ok && len(days) > 0 {
		sectionHeading(pdf, "每日训练计划")
		for _, d := range days {
			day, ok := d.(map[string]any)
			if !ok {
				continue
			}
			pdf.MultiCell(0, 6, fmt.Sprintf(
				"%v：热身 %v，主训练 %v，放松 %v",
				day["day"], day["warmup"], day["main"], day["cooldown"],
			), "", "L", false)
		}
		pdf.Ln(4)
	}

	if suggestions, ok := planData["suggestions"].([]any); ok && len(suggestions) > 0 {
		sectionHeading(pdf, "训练建议")
		for _, s := range suggestions {
			pdf.MultiCell(0, 6, fmt.Sprintf("- %v", s), "", "L", false)
		}
	}

	if content, ok := planData["content"].(string); ok && content != "" {
		pdf.MultiCell(0, 6, content, "", "L", false)
	}

	return pdfBytes(pdf)
}

func sectionHeading(pdf *fpdf.Fpdf, heading string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 9, heading, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
}

func joinAny(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return strings.Join(parts, ", ")
}

func pdfBytes(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
