package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/internal/service/audit"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/validator"
)

// CSVHeader is the column order of exports and accepted imports.
var CSVHeader = []string{
	"id", "name", "type", "province", "city", "neighborhood", "address", "phone", "email",
	"latitude", "longitude", "services", "specialties", "open_24h", "accepts_insurance", "claim_status",
}

// listSeparator joins multi-valued cells (services, specialties).
const listSeparator = ";"

type DirectoryServicer interface {
	List(ctx context.Context, filter *model.EstablishmentFilter) ([]*model.Establishment, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Establishment, error)
	ExportCSV(ctx context.Context, filter *model.EstablishmentFilter, w io.Writer) error
	Import(ctx context.Context, r io.Reader, importerID uuid.UUID) (*model.ImportResult, error)
}

type Service struct {
	repo      repository.EstablishmentRepository
	auditor   *audit.Service
	validator validator.Validator
	logger    *logger.Logger
}

func NewService(repo repository.EstablishmentRepository, auditor *audit.Service, logger *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		auditor:   auditor,
		validator: validator.New(),
		logger:    logger,
	}
}

func (s *Service) List(ctx context.Context, filter *model.EstablishmentFilter) ([]*model.Establishment, int64, error) {
	if filter != nil && filter.ClaimStatus != "" && !filter.ClaimStatus.Valid() {
		return nil, 0, apperrors.BadRequest(fmt.Sprintf("unknown claim status %q", filter.ClaimStatus), nil)
	}
	establishments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Internal(fmt.Errorf("failed to list establishments: %w", err))
	}
	return establishments, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Establishment, error) {
	est, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("establishment", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get establishment: %w", err))
	}
	return est, nil
}

// ExportCSV writes every establishment matching filter, ignoring
// pagination. Fields are quoted as needed so that commas, quotes and
// newlines inside values survive a re-parse.
func (s *Service) ExportCSV(ctx context.Context, filter *model.EstablishmentFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	err := s.repo.Each(ctx, filter, func(est *model.Establishment) error {
		return cw.Write(toRecord(est))
	})
	if err != nil {
		return apperrors.Internal(fmt.Errorf("failed to export establishments: %w", err))
	}

	cw.Flush()
	return cw.Error()
}

func toRecord(est *model.Establishment) []string {
	return []string{
		est.ID.String(),
		est.Name,
		est.Type,
		est.Province,
		est.City,
		est.Neighborhood,
		est.Address,
		est.Phone,
		est.Email,
		formatCoord(est.Latitude),
		formatCoord(est.Longitude),
		strings.Join(est.Services, listSeparator),
		strings.Join(est.Specialties, listSeparator),
		strconv.FormatBool(est.Open24h),
		strconv.FormatBool(est.AcceptsInsurance),
		string(est.ClaimStatus),
	}
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Import reads a CSV file with a header row. Columns are matched by name;
// id and claim_status are ignored because imported establishments always
// start unclaimed. Invalid rows are reported and skipped.
func (s *Service) Import(ctx context.Context, r io.Reader, importerID uuid.UUID) (*model.ImportResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.BadRequest("import file has no header row", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "type", "province", "city"} {
		if _, ok := columns[required]; !ok {
			return nil, apperrors.BadRequest(fmt.Sprintf("import file is missing column %q", required), nil)
		}
	}

	result := &model.ImportResult{}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, apperrors.BadRequest(fmt.Sprintf("failed to read import file at row %d", line), err)
			}
			result.Skipped++
			result.Errors = append(result.Errors, model.ImportError{Row: line, Message: err.Error()})
			continue
		}

		row, err := parseRow(record, columns)
		if err == nil {
			err = s.validator.Validate(row)
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, model.ImportError{Row: line, Message: err.Error()})
			continue
		}

		est := fromImportRow(row)
		if err := s.repo.Create(ctx, est); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, model.ImportError{Row: line, Message: err.Error()})
			continue
		}
		result.Imported++
	}

	s.logger.WithContext(ctx).Info("Establishments imported",
		"imported", result.Imported,
		"skipped", result.Skipped)

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, importerID, model.AuditActionImport, model.AuditEntityEstablishment, uuid.Nil, &audit.LogOptions{
			Metadata: result,
			Message:  fmt.Sprintf("imported %d establishments (%d skipped)", result.Imported, result.Skipped),
		}); err != nil {
			s.logger.Error(err, "Failed to audit import")
		}
	}
	return result, nil
}

func parseRow(record []string, columns map[string]int) (*model.EstablishmentImportRow, error) {
	get := func(name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	row := &model.EstablishmentImportRow{
		Name:         get("name"),
		Type:         strings.ToLower(get("type")),
		Province:     get("province"),
		City:         get("city"),
		Neighborhood: get("neighborhood"),
		Address:      get("address"),
		Phone:        get("phone"),
		Email:        get("email"),
		Services:     splitList(get("services")),
		Specialties:  splitList(get("specialties")),
	}

	var err error
	if row.Latitude, err = parseCoord(get("latitude")); err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	if row.Longitude, err = parseCoord(get("longitude")); err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	if row.Open24h, err = parseBool(get("open_24h")); err != nil {
		return nil, fmt.Errorf("open_24h: %w", err)
	}
	if row.AcceptsInsurance, err = parseBool(get("accepts_insurance")); err != nil {
		return nil, fmt.Errorf("accepts_insurance: %w", err)
	}
	return row, nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	out := []string{}
	for _, part := range strings.Split(s, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseCoord(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "no", "non":
		return false, nil
	case "1", "true", "yes", "oui":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func fromImportRow(row *model.EstablishmentImportRow) *model.Establishment {
	return &model.Establishment{
		Name:             row.Name,
		Type:             row.Type,
		Province:         row.Province,
		City:             row.City,
		Neighborhood:     row.Neighborhood,
		Address:          row.Address,
		Phone:            row.Phone,
		Email:            row.Email,
		Latitude:         row.Latitude,
		Longitude:        row.Longitude,
		Services:         pq.StringArray(row.Services),
		Specialties:      pq.StringArray(row.Specialties),
		Open24h:          row.Open24h,
		AcceptsInsurance: row.AcceptsInsurance,
		ClaimStatus:      model.ClaimStatusUnclaimed,
	}
}
