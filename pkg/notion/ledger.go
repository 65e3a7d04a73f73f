package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Ledger property names.
const (
	PropTitle        = "Nota"
	PropFile         = "Arquivo"
	PropMethod       = "Metodo"
	PropCompleteness = "Completude"
	PropIssueDate    = "Emissao"
	PropIssuerTaxID  = "CNPJ Emitente"
	PropIssuerName   = "Emitente"
	PropRecipient    = "CNPJ Destinatario"
	PropTotal        = "Valor Total"
	PropError        = "Erro"
	PropRunID        = "Run ID"
	PropProcessedAt  = "Processado Em"
)

// LedgerEntry is one extraction run as recorded in the ledger database.
type LedgerEntry struct {
	RunID          string
	FileName       string
	Method         string
	Completeness   float64
	Number         string
	IssueDate      string
	IssuerTaxID    string
	IssuerName     string
	RecipientTaxID string
	Total          *float64
	Error          string
	ProcessedAt    time.Time
}

// Ledger records extraction runs as pages of a Notion database, one page
// per file name.
type Ledger struct {
	client Client
	dbID   string
}

// NewLedger returns a Ledger writing to the database dbID.
func NewLedger(c Client, dbID string) *Ledger {
	return &Ledger{client: c, dbID: dbID}
}

// Upsert updates the page for e.FileName, creating it when absent. It
// returns the page ID.
func (l *Ledger) Upsert(ctx context.Context, e LedgerEntry) (string, error) {
	existing, err := l.find(ctx, e.FileName)
	if err != nil {
		return "", err
	}

	props := entryProperties(e)
	if existing != "" {
		page, err := l.client.UpdatePage(ctx, existing, &notionapi.PageUpdateRequest{Properties: props})
		if err != nil {
			return "", eris.Wrap(err, fmt.Sprintf("notion: update ledger page %s", existing))
		}
		return string(page.ID), nil
	}

	page, err := l.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(l.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: create ledger page")
	}
	return string(page.ID), nil
}

func (l *Ledger) find(ctx context.Context, fileName string) (string, error) {
	resp, err := l.client.QueryDatabase(ctx, l.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropFile,
			RichText: &notionapi.TextFilterCondition{Equals: fileName},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: find ledger page")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func entryProperties(e LedgerEntry) notionapi.Properties {
	title := e.Number
	if title == "" {
		title = e.FileName
	}
	processed := e.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	date := notionapi.Date(processed)

	props := notionapi.Properties{
		PropTitle: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(title),
		},
		PropFile:         textProperty(e.FileName),
		PropRunID:        textProperty(e.RunID),
		PropIssueDate:    textProperty(e.IssueDate),
		PropIssuerTaxID:  textProperty(e.IssuerTaxID),
		PropIssuerName:   textProperty(e.IssuerName),
		PropRecipient:    textProperty(e.RecipientTaxID),
		PropError:        textProperty(truncate(e.Error, 200)),
		PropCompleteness: notionapi.NumberProperty{Number: e.Completeness},
		PropProcessedAt: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
	}
	if e.Method != "" {
		props[PropMethod] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: e.Method},
		}
	}
	if e.Total != nil {
		props[PropTotal] = notionapi.NumberProperty{Number: *e.Total}
	}
	return props
}

func textProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(s),
	}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
