package leave

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// TrailPDF renders the approval trail of a request.
func (s *Service) TrailPDF(ctx context.Context, viewer Viewer, requestID string) ([]byte, error) {
	detail, err := s.Get(ctx, viewer, requestID)
	if err != nil {
		return nil, err
	}
	return renderTrail(detail)
}

func renderTrail(d Detail) ([]byte, error) {
	req := d.Request
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Approval trail")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Request: %s", req.ID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Requester: %s", req.RequesterID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Type: %s (%s)", req.LeaveTypeName, req.RequestType))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s   Workflow: %s", req.Status, d.Outcome.MasterState))
	pdf.Ln(10)

	if len(d.Workflow.SubFlows) == 0 {
		pdf.Cell(0, 7, "No approval policy matched this request.")
		pdf.Ln(6)
	}
	for _, sf := range d.Workflow.SubFlows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, fmt.Sprintf("Policy: %s", sf.PolicyName))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, step := range sf.Steps() {
			line := fmt.Sprintf("#%d %s %s -> %s", step.Step.Sequence, step.Step.ResolverKind, step.State, strings.Join(step.ResolverIDs, ", "))
			if step.FallbackUsed {
				line += fmt.Sprintf(" (fallback %s)", step.FallbackLevel)
			}
			if step.Skipped {
				line += fmt.Sprintf(" (self approval skipped: %s)", strings.Join(step.NominalResolverIDs, ", "))
			}
			pdf.MultiCell(0, 6, line, "", "L", false)
			if act, ok := d.Activity[step.ID]; ok {
				note := fmt.Sprintf("    by %s", act.ActedBy)
				if act.ActedAt != nil {
					note += " at " + act.ActedAt.Format("2006-01-02 15:04")
				}
				if act.Comment != "" {
					note += ": " + act.Comment
				}
				pdf.MultiCell(0, 6, note, "", "L", false)
			}
		}
		if len(sf.WatcherIDs) > 0 {
			pdf.MultiCell(0, 6, "Watchers: "+strings.Join(sf.WatcherIDs, ", "), "", "L", false)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
