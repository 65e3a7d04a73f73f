// Package nfe parses electronic invoices (NF-e) in the portalfiscal XML
// schema into invoice records.
package nfe

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/normalize"
)

// Namespace is the NF-e schema namespace. Elements are matched by local
// name, so documents with or without it are accepted.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// MalformedError reports a document that is not a well-formed NF-e.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "nfe: malformed document: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err (or its chain) is a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

func malformed(msg string) error {
	return &MalformedError{Err: eris.New(msg)}
}

// ParseFile reads and parses the NF-e at path.
func ParseFile(ctx context.Context, path string) (model.InvoiceRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.InvoiceRecord{}, eris.Wrap(err, "nfe: context cancelled")
	}
	f, err := os.Open(path)
	if err != nil {
		return model.InvoiceRecord{}, eris.Wrapf(err, "nfe: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(f)
}

// Parse decodes the first NFe element in r. The root may be nfeProc or
// NFe itself.
func Parse(r io.Reader) (model.InvoiceRecord, error) {
	decoder := NewDecoder(r)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return model.InvoiceRecord{}, malformed("no NFe element")
		}
		if err != nil {
			return model.InvoiceRecord{}, &MalformedError{Err: eris.Wrap(err, "read token")}
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "NFe" {
			continue
		}

		var doc nfeDocument
		if err := decoder.DecodeElement(&doc, &se); err != nil {
			return model.InvoiceRecord{}, &MalformedError{Err: eris.Wrap(err, "decode NFe")}
		}
		if doc.Inf == nil {
			return model.InvoiceRecord{}, malformed("missing infNFe")
		}
		return doc.Inf.record(), nil
	}
}

// NewDecoder returns an xml.Decoder that understands the legacy encodings
// NF-e issuers declare in the prolog (ISO-8859-1, windows-1252).
func NewDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "nfe: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

type nfeDocument struct {
	Inf *infNFe `xml:"infNFe"`
}

type infNFe struct {
	Ide   ide    `xml:"ide"`
	Emit  party  `xml:"emit"`
	Dest  party  `xml:"dest"`
	Det   []det  `xml:"det"`
	Total totals `xml:"total"`
}

type ide struct {
	Number   string `xml:"nNF"`
	IssuedAt string `xml:"dhEmi"`
	IssuedOn string `xml:"dEmi"`
}

type party struct {
	CNPJ string `xml:"CNPJ"`
	Name string `xml:"xNome"`
}

type det struct {
	Prod product `xml:"prod"`
}

type product struct {
	Description string `xml:"xProd"`
	Quantity    string `xml:"qCom"`
	UnitAmount  string `xml:"vUnCom"`
	LineTotal   string `xml:"vProd"`
}

type totals struct {
	ICMS *icmsTotals `xml:"ICMSTot"`
}

type icmsTotals struct {
	Invoice   *string `xml:"vNF"`
	ICMS      *string `xml:"vICMS"`
	ICMSST    *string `xml:"vST"`
	IPI       *string `xml:"vIPI"`
	PIS       *string `xml:"vPIS"`
	COFINS    *string `xml:"vCOFINS"`
	II        *string `xml:"vII"`
	TotalTrib *string `xml:"vTotTrib"`
}

type taxField struct {
	code  string
	value *string
}

// taxes pairs each ICMSTot tax element with its record key.
func (t *icmsTotals) taxes() []taxField {
	return []taxField{
		{"ICMS", t.ICMS},
		{"ICMS_ST", t.ICMSST},
		{"IPI", t.IPI},
		{"PIS", t.PIS},
		{"COFINS", t.COFINS},
		{"II", t.II},
		{"TOTAL_TRIBUTOS", t.TotalTrib},
	}
}

var isoDate = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

func (inf *infNFe) record() model.InvoiceRecord {
	b := model.NewRecordBuilder().
		SetNumber(inf.Ide.Number).
		SetIssuerTaxID(inf.Emit.CNPJ).
		SetIssuerName(inf.Emit.Name).
		SetRecipientTaxID(inf.Dest.CNPJ).
		SetRecipientName(inf.Dest.Name)

	issued := inf.Ide.IssuedAt
	if strings.TrimSpace(issued) == "" {
		issued = inf.Ide.IssuedOn
	}
	if d, ok := parseISODate(issued); ok {
		b.SetIssueDate(d)
	}

	for _, d := range inf.Det {
		b.AddItem(model.LineItem{
			Description: d.Prod.Description,
			Quantity:    xmlDecimal(d.Prod.Quantity),
			UnitAmount:  xmlDecimal(d.Prod.UnitAmount),
			LineTotal:   xmlDecimal(d.Prod.LineTotal),
		})
	}

	if tot := inf.Total.ICMS; tot != nil {
		if tot.Invoice != nil {
			if v := xmlDecimal(*tot.Invoice); v.Valid {
				b.SetTotal(v.Decimal)
			}
		}
		for _, tax := range tot.taxes() {
			if tax.value == nil {
				continue
			}
			if v := xmlDecimal(*tax.value); v.Valid {
				b.SetTax(tax.code, v.Decimal)
			}
		}
	}

	return b.Build()
}

// parseISODate reads the YYYY-MM-DD prefix of an NF-e timestamp.
func parseISODate(s string) (time.Time, bool) {
	m := isoDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return normalize.Date(m[3] + "/" + m[2] + "/" + m[1])
}

// xmlDecimal parses schema decimals ("1234.56"), falling back to the
// locale-aware normalizer for hand-edited files.
func xmlDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return decimal.NewNullDecimal(d)
	}
	if d, ok := normalize.Amount(s); ok {
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}
