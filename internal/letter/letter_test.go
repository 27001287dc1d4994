package letter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestping/requestping/internal/model"
)

var nca = model.Office{Code: "NCA", Name: "National Cemetery Administration", Email: "cemncafoia@va.gov"}

func baseFields() Fields {
	return Fields{
		Subject:     "Grandfather's interment record",
		Description: "All interment records for John Doe, 1952.",
	}
}

func TestCompose_MinimalFields(t *testing.T) {
	c := NewComposer("requests@requestping.example")
	out := c.Compose(Fields{Description: "Records."}, model.Office{})

	assert.True(t, strings.HasPrefix(out, "To Whom It May Concern:\n\n"))
	assert.Contains(t, out, "5 U.S.C. § 552")
	assert.Contains(t, out, "REQUESTED RECORDS:\n\nRecords.")
	assert.NotContains(t, out, "REQUESTER CONTACT INFORMATION")
	assert.NotContains(t, out, "RECORD IDENTIFICATION")
	assert.NotContains(t, out, "DATE RANGE")
	assert.NotContains(t, out, "RECORD TYPE")
	assert.True(t, strings.HasSuffix(out, "RequestPing\nOn behalf of a third party\nrequests@requestping.example"))
}

func TestCompose_SectionOrder(t *testing.T) {
	f := Fields{
		Description:     "Budget memos.",
		RecordType:      "financial_records",
		RecordTitle:     "FY24 Budget",
		RecordAuthor:    "CFO",
		RecordRecipient: "Secretary",
		DateRangeStart:  "2024-01-01",
		DateRangeEnd:    "2024-12-31",
		DeliveryFormat:  model.DeliveryElectronic,
		RequesterEmail:  "jane@example.com",
		RequesterPhone:  "555-0100",
	}
	out := NewComposer("sender@example.com").Compose(f, nca)

	order := []string{
		"Attn: FOIA Officer, National Cemetery Administration",
		"To Whom It May Concern:",
		"REQUESTER CONTACT INFORMATION:\nEmail: jane@example.com\nPhone: 555-0100",
		"REQUESTED RECORDS:",
		"RECORD IDENTIFICATION:\nTitle: FY24 Budget\nAuthor: CFO\nRecipient: Secretary",
		"DATE RANGE:\n2024-01-01 to 2024-12-31",
		"RECORD TYPE:\nFINANCIAL RECORDS",
		"DELIVERY FORMAT:",
		"FEES:",
		"Please acknowledge receipt",
		"Sincerely,",
	}
	last := -1
	for _, section := range order {
		idx := strings.Index(out, section)
		require.GreaterOrEqual(t, idx, 0, "missing %q", section)
		assert.Greater(t, idx, last, "%q out of order", section)
		last = idx
	}
}

func TestCompose_IdentificationLinesConditional(t *testing.T) {
	f := baseFields()
	f.RecordAuthor = "Director"
	out := NewComposer("").Compose(f, nca)

	assert.Contains(t, out, "RECORD IDENTIFICATION:\nAuthor: Director")
	assert.NotContains(t, out, "Title:")
	assert.NotContains(t, out, "Recipient:")
}

func TestCompose_DateRange(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantBlock bool
	}{
		{"both present", "2020-01-01", "2020-06-30", true},
		{"start only", "2020-01-01", "", false},
		{"end only", "", "2020-06-30", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := baseFields()
			f.DateRangeStart = tt.start
			f.DateRangeEnd = tt.end
			out := NewComposer("s@example.com").Compose(f, nca)

			if tt.wantBlock {
				assert.Contains(t, out, "DATE RANGE:\n"+tt.start+" to "+tt.end)
			} else {
				assert.NotContains(t, out, "DATE RANGE")
			}
		})
	}
}

func TestCompose_DeliveryFormat(t *testing.T) {
	tests := map[model.DeliveryFormat]string{
		model.DeliveryElectronic:           "provided in electronic format (PDF).",
		model.DeliveryPaper:                "provided in paper format.",
		model.DeliveryEither:               "provided in either electronic or paper format.",
		model.DeliveryFormat("microfiche"): "provided in either electronic or paper format.",
	}
	for format, want := range tests {
		f := baseFields()
		f.DeliveryFormat = format
		assert.Contains(t, NewComposer("").Compose(f, nca), want, "format %q", format)
	}
}

func TestCompose_FeeSectionExclusive(t *testing.T) {
	waiver := baseFields()
	waiver.FeeWaiver = true
	waiver.WaiverReason = "Disclosure is in the public interest; I am a journalist."
	out := NewComposer("").Compose(waiver, nca)

	assert.Contains(t, out, "FEE WAIVER REQUEST:\nI request a waiver of all fees for this request. Disclosure is in the public interest; I am a journalist.")
	assert.NotContains(t, out, "FEES:")
	assert.NotContains(t, out, "$25.00")

	standard := baseFields()
	out = NewComposer("").Compose(standard, nca)
	assert.Contains(t, out, "FEES:\nPlease notify me before processing this request if the fees are expected to exceed $25.00.")
	assert.NotContains(t, out, "FEE WAIVER REQUEST")
	assert.NotContains(t, out, "I agree to pay")
}

func TestCompose_AgreementToPayWithRecordType(t *testing.T) {
	f := baseFields()
	f.RecordType = "burial_records"
	out := NewComposer("").Compose(f, nca)

	assert.Contains(t, out, "exceed $25.00. I agree to pay fees up to $25.00.")
}

func TestCompose_WaiverWithoutReason(t *testing.T) {
	f := baseFields()
	f.FeeWaiver = true
	out := NewComposer("").Compose(f, nca)

	assert.Contains(t, out, "FEE WAIVER REQUEST:\nI request a waiver of all fees for this request.\n\n")
}

func TestCompose_Deterministic(t *testing.T) {
	f := baseFields()
	f.RecordType = "burial_records"
	f.DeliveryFormat = model.DeliveryPaper
	c := NewComposer("s@example.com")

	assert.Equal(t, c.Compose(f, nca), c.Compose(f, nca))
}

func TestFieldsFromRequest(t *testing.T) {
	req := &model.Request{
		Subject:        "Subject",
		Description:    "Desc",
		RecordType:     "pension",
		DeliveryFormat: model.DeliveryPaper,
		FeeWaiver:      true,
		WaiverReason:   "reason",
		RequesterEmail: "me@example.com",
	}
	f := FieldsFromRequest(req)

	assert.Equal(t, "Desc", f.Description)
	assert.Equal(t, model.DeliveryPaper, f.DeliveryFormat)
	assert.True(t, f.FeeWaiver)
	assert.Equal(t, "me@example.com", f.RequesterEmail)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "FOIA Request: Grandfather's interment record", Subject("Grandfather's interment record"))
}
