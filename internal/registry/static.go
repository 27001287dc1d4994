package registry

import (
	"context"
	"log/slog"

	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
)

// Office codes of the built-in table.
const (
	CodeVBA     = "VBA"
	CodeVHA     = "VHA"
	CodeNCA     = "NCA"
	CodeOIG     = "OIG"
	CodeGeneral = "GENERAL"
)

// VAOffices is the built-in routing table for the Department of Veterans
// Affairs, in matching order.
var VAOffices = []model.Office{
	{
		Code:        CodeVBA,
		Name:        "Veterans Benefits Administration",
		Email:       "FOIA.VBACO@va.gov",
		Description: "Claims, benefits, education, loans, insurance",
		RecordTypes: []string{
			"benefits", "compensation", "pension", "education", "gi_bill", "home_loans",
			"life_insurance", "fiduciary", "vr_e", "workload_statistics", "annual_reports",
		},
	},
	{
		Code:        CodeVHA,
		Name:        "Veterans Health Administration",
		Email:       "vhafoiahelp@va.gov",
		Phone:       "(833) 880-8500",
		Description: "Healthcare operations, contracts, HR (not personal medical records)",
		RecordTypes: []string{
			"police_reports", "contracts", "budget", "financial_records", "hr_documents",
			"harassment_prevention", "disruptive_behavior", "crisis_line", "hospital_records",
		},
	},
	{
		Code:        CodeNCA,
		Name:        "National Cemetery Administration",
		Email:       "cemncafoia@va.gov",
		Description: "Cemetery and burial records",
		RecordTypes: []string{"burial_records", "cemetery_history", "headstone_records", "memorial_records"},
	},
	{
		Code:        CodeOIG,
		Name:        "Office of Inspector General",
		Email:       "VAOIGFOIA-PA@va.gov",
		Description: "OIG investigations, audits, reports",
		RecordTypes: []string{"investigations", "audits", "oig_reports", "inspector_general"},
	},
	GeneralOffice,
}

// GeneralOffice receives everything no other office claims.
var GeneralOffice = model.Office{
	Code:        CodeGeneral,
	Name:        "VA General FOIA Help",
	Email:       "FOIAHelp@va.gov",
	Description: "General inquiries or unclear record types",
	RecordTypes: []string{"other", "unknown", "general"},
}

// Static serves a compiled-in catalog.
type Static struct {
	catalog *Catalog
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewStatic creates a registry over a fixed table.
func NewStatic(offices []model.Office, fallback model.Office, logger *slog.Logger, recorder metrics.Recorder) *Static {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Static{
		catalog: NewCatalog(offices, fallback),
		logger:  logger.With("component", "registry.static"),
		metrics: recorder,
	}
}

// NewVA creates the built-in Veterans Affairs registry.
func NewVA(logger *slog.Logger, recorder metrics.Recorder) *Static {
	return NewStatic(VAOffices, GeneralOffice, logger, recorder)
}

// Classify implements Registry.
func (s *Static) Classify(ctx context.Context, recordType string) model.Office {
	office, fallback := s.catalog.Classify(recordType)
	s.metrics.IncClassification(fallback)
	if fallback {
		s.logger.Info("record type routed to fallback office",
			"record_type", recordType,
			"office", office.Code,
		)
	}
	return office
}

// ListRecordTypes implements Registry.
func (s *Static) ListRecordTypes(ctx context.Context) []model.RecordTypeOption {
	return s.catalog.RecordTypes()
}

// Offices implements Registry.
func (s *Static) Offices(ctx context.Context) []model.Office {
	return s.catalog.Offices()
}

// Lookup implements Registry.
func (s *Static) Lookup(ctx context.Context, code string) (model.Office, bool) {
	return s.catalog.Lookup(code)
}
