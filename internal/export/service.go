package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/trackchanges/internal/diff"
	"github.com/rpattn/trackchanges/internal/history"
)

const historySheet = "History"

// Service writes the version history of an entity to an xlsx workbook: one
// row per version, audit fields first, then the flattened properties. The
// column set is the union of flattened property keys across all exported
// versions, so rows from before a field existed simply leave the cell
// blank.
type Service struct {
	service *history.Service
}

// NewService creates the export service.
func NewService(service *history.Service) *Service {
	return &Service{service: service}
}

// WriteHistory streams the full history of an entity as an xlsx workbook.
func (s *Service) WriteHistory(ctx context.Context, entityID uuid.UUID, w io.Writer) error {
	versions, err := s.service.ListHistory(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("no history recorded for entity %s", entityID)
	}

	flattened := make([]map[string]string, len(versions))
	columnSet := map[string]struct{}{}
	for i, version := range versions {
		acc := map[string]string{}
		if len(version.Properties) > 0 {
			if err := diff.FlattenProperties("", version.Properties, acc); err != nil {
				return fmt.Errorf("flatten version %d: %w", version.HistoryID, err)
			}
		}
		flattened[i] = acc
		for key := range acc {
			columnSet[key] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for key := range columnSet {
		columns = append(columns, key)
	}
	sort.Strings(columns)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return fmt.Errorf("name export sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(historySheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	header := []any{"history_id", "history_date", "history_type", "reverted_to", "version"}
	for _, column := range columns {
		header = append(header, column)
	}
	if err := stream.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, version := range versions {
		number, err := s.service.VersionNumber(ctx, version)
		if err != nil {
			return fmt.Errorf("number version %d: %w", version.HistoryID, err)
		}
		row := []any{
			version.HistoryID,
			version.HistoryDate.UTC().Format(time.RFC3339),
			string(version.HistoryType),
			formatRevertedTo(version.RevertedToID),
			number,
		}
		for _, column := range columns {
			row = append(row, flattened[i][column])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("address row %d: %w", i+2, err)
		}
		if err := stream.SetRow(cell, row); err != nil {
			return fmt.Errorf("write version row %d: %w", version.HistoryID, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush export sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName builds a safe download name for an entity's history export.
func FileName(entityType string, entityID uuid.UUID) string {
	base := sanitizeFileComponent(entityType)
	if base == "" {
		base = "entity"
	}
	return fmt.Sprintf("%s-history-%s.xlsx", base, entityID.String())
}

func formatRevertedTo(id *int64) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%d", *id)
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}
