package status

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/models"
	"trade-confirmation-backend/internal/repository"
)

// MailDraft is an unsent reply to the bank. Delivery happens elsewhere.
type MailDraft struct {
	To      string   `json:"to"`
	Cc      []string `json:"cc"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

var mailbackTemplate = template.Must(template.New("mailback").Parse(
	`Dear {{.Counterparty}} team,

{{if .Discrepancies -}}
We have reviewed your confirmation of trade {{.TradeNumber}} and it does not agree with our records on the following fields:

field: your value / our value
{{range .Discrepancies}}{{.Field}}: {{or .ConfirmationValue "(missing)"}} / {{or .TradeValue "(missing)"}}
{{end}}
Please review these values and send us a corrected confirmation.
{{- else -}}
We have reviewed your confirmation of trade {{.TradeNumber}} and it agrees with our records. The confirmation is accepted.
{{- end}}

Kind regards,
{{.Organization}}
`))

type mailbackData struct {
	Counterparty  string
	TradeNumber   string
	Organization  string
	Discrepancies []models.Discrepancy
}

// Mailback drafts replies to confirmation senders.
type Mailback struct {
	matches       *repository.MatchRepository
	trades        *repository.TradeRepository
	confirmations *repository.ConfirmationRepository
	tenants       *repository.TenantRepository
	opsEmail      string
}

func NewMailback(db *gorm.DB, opsEmail string) *Mailback {
	return &Mailback{
		matches:       repository.NewMatchRepository(db),
		trades:        repository.NewTradeRepository(db),
		confirmations: repository.NewConfirmationRepository(db),
		tenants:       repository.NewTenantRepository(db),
		opsEmail:      opsEmail,
	}
}

// Build drafts the reply for a tenant's match. The signing organisation is
// always the tenant's registered name.
func (b *Mailback) Build(ctx context.Context, tenantID, matchID uuid.UUID) (*MailDraft, error) {
	match, err := b.matches.Get(ctx, tenantID, matchID)
	if err != nil {
		return nil, err
	}
	trade, err := b.trades.GetByID(ctx, tenantID, match.TradeID)
	if err != nil {
		return nil, err
	}
	confirmation, err := b.confirmations.GetByID(ctx, tenantID, match.ConfirmationID)
	if err != nil {
		return nil, err
	}
	tenant, err := b.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	to := strings.TrimSpace(confirmation.EmailSender)
	if to == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "confirmation %s has no sender address", confirmation.ID)
	}

	var body bytes.Buffer
	err = mailbackTemplate.Execute(&body, mailbackData{
		Counterparty:  trade.CounterpartyName,
		TradeNumber:   trade.TradeNumber,
		Organization:  tenant.Name,
		Discrepancies: match.Discrepancies,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "rendering mailback")
	}

	var cc []string
	if b.opsEmail != "" {
		cc = append(cc, b.opsEmail)
	}
	return &MailDraft{
		To:      to,
		Cc:      cc,
		Subject: "Confirmation of " + trade.TradeNumber,
		Body:    body.String(),
	}, nil
}
