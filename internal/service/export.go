package service

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/campus-placement/internal/model"
)

const registrationsSheet = "Registrations"

var registrationHeaders = []string{
	"Student ID", "Name", "Email", "Status", "Applied At", "Resume", "Form", "Status Updated At",
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportRegistrations renders the registrations of a placement as an xlsx
// workbook.  Authorization is the same as RegistrationsForPlacement.  It
// returns the workbook and a suggested download filename.
func (s *PlacementService) ExportRegistrations(ctx context.Context, actor model.Actor,
	placementID uint64) (*bytes.Buffer, string, error) {
	p, err := s.managed(ctx, actor, placementID)
	if err != nil {
		return nil, "", err
	}
	regs, err := s.regs.ListByPlacement(ctx, placementID)
	if err != nil {
		return nil, "", err
	}

	buf, err := buildRegistrationsWorkbook(p, regs)
	if err != nil {
		s.log.Error("write registrations workbook", zap.Uint64("placement_id", placementID), zap.Error(err))
		return nil, "", err
	}
	name := unsafeFilename.ReplaceAllString(strings.TrimSpace(p.CompanyName), "_")
	if name == "" {
		name = "placement"
	}
	return buf, fmt.Sprintf("registrations_%s_%d.xlsx", name, p.ID), nil
}

func buildRegistrationsWorkbook(p *model.Placement, regs []model.RegistrationWithStudent) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(registrationsSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(registrationsSheet, "A", "A", 12)
	_ = f.SetColWidth(registrationsSheet, "B", "C", 28)
	_ = f.SetColWidth(registrationsSheet, "D", "E", 20)
	_ = f.SetColWidth(registrationsSheet, "F", "G", 48)
	_ = f.SetColWidth(registrationsSheet, "H", "H", 20)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	// Row 1: title, row 2: headers, data from row 3.
	lastCol, _ := excelize.ColumnNumberToName(len(registrationHeaders))
	_ = f.SetCellValue(registrationsSheet, "A1", fmt.Sprintf("%s - %s", p.CompanyName, p.JobTitle))
	_ = f.MergeCell(registrationsSheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(registrationsSheet, "A1", "A1", headerStyle)

	for i, h := range registrationHeaders {
		c, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(registrationsSheet, c, h)
	}
	_ = f.SetCellStyle(registrationsSheet, "A2", lastCol+"2", headerStyle)

	for i, r := range regs {
		row := i + 3
		updated := ""
		if r.StatusUpdatedAt != nil {
			updated = r.StatusUpdatedAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			r.StudentID, r.StudentName, r.StudentEmail, string(r.Status),
			r.AppliedAt.UTC().Format(time.RFC3339), r.ResumeURL, r.FormURL, updated,
		}
		for col, v := range values {
			c, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(registrationsSheet, c, v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
