// Package letter renders FOIA request letters.
package letter

import (
	"strings"

	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/registry"
)

// FeeThreshold is the amount above which the requester asks to be notified.
const FeeThreshold = "$25.00"

// SignatureName identifies the service in the signature block.
const SignatureName = "RequestPing"

// Fields are the request attributes a letter is built from. Every field
// except Description may be empty.
type Fields struct {
	Subject         string
	Description     string
	RecordType      string
	RecordTitle     string
	RecordAuthor    string
	RecordRecipient string
	DateRangeStart  string
	DateRangeEnd    string
	DeliveryFormat  model.DeliveryFormat
	FeeWaiver       bool
	WaiverReason    string
	RequesterEmail  string
	RequesterPhone  string
}

// FieldsFromRequest extracts letter fields from a stored request.
func FieldsFromRequest(r *model.Request) Fields {
	return Fields{
		Subject:         r.Subject,
		Description:     r.Description,
		RecordType:      r.RecordType,
		RecordTitle:     r.RecordTitle,
		RecordAuthor:    r.RecordAuthor,
		RecordRecipient: r.RecordRecipient,
		DateRangeStart:  r.DateRangeStart,
		DateRangeEnd:    r.DateRangeEnd,
		DeliveryFormat:  r.DeliveryFormat,
		FeeWaiver:       r.FeeWaiver,
		WaiverReason:    r.WaiverReason,
		RequesterEmail:  r.RequesterEmail,
		RequesterPhone:  r.RequesterPhone,
	}
}

// Composer renders letters signed with a fixed sender identity.
type Composer struct {
	sender string
}

// NewComposer creates a composer that signs as sender.
func NewComposer(sender string) *Composer {
	return &Composer{sender: sender}
}

// Sender returns the configured sender address.
func (c *Composer) Sender() string {
	return c.sender
}

// Subject returns the email subject line for a request.
func Subject(requestSubject string) string {
	return "FOIA Request: " + requestSubject
}

// Compose renders the plain-text letter. Optional sections are omitted when
// their fields are empty.
func (c *Composer) Compose(f Fields, office model.Office) string {
	var b strings.Builder

	if office.Name != "" {
		b.WriteString("Attn: FOIA Officer, " + office.Name + "\n\n")
	}
	b.WriteString("To Whom It May Concern:\n\n")
	b.WriteString("This is a request under the Freedom of Information Act (5 U.S.C. § 552).")

	if contact := contactBlock(f); contact != "" {
		b.WriteString("\n\nREQUESTER CONTACT INFORMATION:\n")
		b.WriteString(contact)
	}

	b.WriteString("\n\nREQUESTED RECORDS:\n\n")
	b.WriteString(f.Description)

	if ident := identificationBlock(f); ident != "" {
		b.WriteString("\n\nRECORD IDENTIFICATION:\n")
		b.WriteString(ident)
	}

	if f.DateRangeStart != "" && f.DateRangeEnd != "" {
		b.WriteString("\n\nDATE RANGE:\n")
		b.WriteString(f.DateRangeStart + " to " + f.DateRangeEnd)
	}

	if tag := registry.DisplayTag(f.RecordType); tag != "" {
		b.WriteString("\n\nRECORD TYPE:\n")
		b.WriteString(tag)
	}

	b.WriteString("\n\nDELIVERY FORMAT:\n")
	b.WriteString("I request that the responsive records be provided in " + deliveryPhrase(f.DeliveryFormat) + ".")

	if f.FeeWaiver {
		b.WriteString("\n\nFEE WAIVER REQUEST:\n")
		b.WriteString("I request a waiver of all fees for this request.")
		if reason := strings.TrimSpace(f.WaiverReason); reason != "" {
			b.WriteString(" " + f.WaiverReason)
		}
	} else {
		b.WriteString("\n\nFEES:\n")
		b.WriteString("Please notify me before processing this request if the fees are expected to exceed " + FeeThreshold + ".")
		if strings.TrimSpace(f.RecordType) != "" {
			b.WriteString(" I agree to pay fees up to " + FeeThreshold + ".")
		}
	}

	b.WriteString("\n\nPlease acknowledge receipt of this request and provide a tracking number if available.")
	b.WriteString("\n\nThank you for your attention to this matter.")
	b.WriteString("\n\nSincerely,\n\n")
	b.WriteString(SignatureName + "\nOn behalf of a third party")
	if c.sender != "" {
		b.WriteString("\n" + c.sender)
	}

	return b.String()
}

func contactBlock(f Fields) string {
	var lines []string
	if f.RequesterEmail != "" {
		lines = append(lines, "Email: "+f.RequesterEmail)
	}
	if f.RequesterPhone != "" {
		lines = append(lines, "Phone: "+f.RequesterPhone)
	}
	return strings.Join(lines, "\n")
}

func identificationBlock(f Fields) string {
	var lines []string
	if f.RecordTitle != "" {
		lines = append(lines, "Title: "+f.RecordTitle)
	}
	if f.RecordAuthor != "" {
		lines = append(lines, "Author: "+f.RecordAuthor)
	}
	if f.RecordRecipient != "" {
		lines = append(lines, "Recipient: "+f.RecordRecipient)
	}
	return strings.Join(lines, "\n")
}

func deliveryPhrase(format model.DeliveryFormat) string {
	switch format {
	case model.DeliveryElectronic:
		return "electronic format (PDF)"
	case model.DeliveryPaper:
		return "paper format"
	default:
		return "either electronic or paper format"
	}
}
