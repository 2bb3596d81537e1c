package export

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/xuri/excelize/v2"
)

type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]string
}

type Workbook struct {
	File *excelize.File
}

// BuildSemesterSheets produces one sheet per owner type with capped totals
// and the per-category capped sums, for reporting consumers.
func BuildSemesterSheets(ctx context.Context, database *sql.DB, semesterID int64) ([]SheetSpec, error) {
	var sheets []SheetSpec
	for _, target := range []models.Target{models.TargetStudent, models.TargetClub} {
		spec, err := buildSheet(ctx, database, semesterID, target)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, spec)
	}
	return sheets, nil
}

func buildSheet(ctx context.Context, database *sql.DB, semesterID int64, target models.Target) (SheetSpec, error) {
	groups, err := db.GetGroups(ctx, database, target, false)
	if err != nil {
		return SheetSpec{}, err
	}
	records, err := db.ListRecordsBySemester(ctx, database, semesterID, target)
	if err != nil {
		return SheetSpec{}, err
	}

	sums, err := groupSumsBySemester(ctx, database, semesterID, target)
	if err != nil {
		return SheetSpec{}, err
	}

	header := []string{"Owner ID", "Month", "Total"}
	for _, g := range groups {
		header = append(header, fmt.Sprintf("%s (max %d)", g.Name, g.MaxScore))
	}

	var rows [][]string
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.OwnerID, 10),
			strconv.Itoa(r.Month),
			strconv.Itoa(r.TotalScore),
		}
		for _, g := range groups {
			s := sums[r.ID][g.ID]
			if s > g.MaxScore {
				s = g.MaxScore
			}
			row = append(row, strconv.Itoa(s))
		}
		rows = append(rows, row)
	}

	title := "Students"
	if target == models.TargetClub {
		title = "Clubs"
	}
	return SheetSpec{Title: title, Header: header, Rows: rows}, nil
}

func groupSumsBySemester(ctx context.Context, database *sql.DB, semesterID int64, target models.Target) (map[int64]map[int64]int, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT r.id, c.group_id, COALESCE(SUM(e.score), 0)
		FROM movement_records r
		JOIN ledger_entries e ON e.record_id = r.id
		JOIN criteria c ON c.id = e.criterion_id
		WHERE r.semester_id = $1 AND r.owner_type = $2
		GROUP BY r.id, c.group_id`,
		semesterID, string(target))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[int64]map[int64]int{}
	for rows.Next() {
		var recordID, groupID int64
		var sum int
		if err := rows.Scan(&recordID, &groupID, &sum); err != nil {
			return nil, err
		}
		if out[recordID] == nil {
			out[recordID] = map[int64]int{}
		}
		out[recordID][groupID] = sum
	}
	return out, rows.Err()
}

func NewWorkbook(sheets []SheetSpec) (*Workbook, error) {
	f := excelize.NewFile()

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("new sheet: %w", err)
			}
		}
		for col, h := range s.Header {
			cell := fmt.Sprintf("%s1", colName(col+1))
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		// header style + filter on row 1 only
		end := colName(len(s.Header)) + "1"
		_ = f.SetCellStyle(name, "A1", end, bold)
		_ = f.AutoFilter(name, "A1:"+end, nil)

		for r, row := range s.Rows {
			for c, val := range row {
				cell := fmt.Sprintf("%s%d", colName(c+1), r+2)
				if err := f.SetCellStr(name, cell, val); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell, err)
				}
			}
		}
		// heuristic widths from header and the first rows
		for c := 1; c <= len(s.Header); c++ {
			maxim := len(s.Header[c-1])
			for r := 0; r < minim(50, len(s.Rows)); r++ {
				if l := len(s.Rows[r][c-1]); l > maxim {
					maxim = l
				}
			}
			w := float64(maxim) * 0.9
			if w < 10 {
				w = 10
			}
			if w > 40 {
				w = 40
			}
			_ = f.SetColWidth(name, colName(c), colName(c), w)
		}
	}
	return &Workbook{File: f}, nil
}

// WriteTo streams the workbook, e.g. straight into an HTTP response.
func (w *Workbook) WriteTo(dst io.Writer) error {
	_, err := w.File.WriteTo(dst)
	return err
}

// helpers
func colName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

func minim(a, b int) int {
	if a < b {
		return a
	}
	return b
}
