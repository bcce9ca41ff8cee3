package tally

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rajlabs/tallybridge/internal/record"
)

// Tally emits raw control characters inside text nodes (form feeds from
// printed addresses, mostly), which encoding/xml rejects outright.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// sanitizeXML strips the control characters Tally leaks into responses.
func sanitizeXML(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

var titleCaser = cases.Title(language.English)

// ledgerXML mirrors one LEDGER element of a collection export. Tally puts
// the ledger name in the NAME attribute and duplicates most contact fields
// under several historical tag names.
type ledgerXML struct {
	NameAttr string `xml:"NAME,attr"`
	GUID     string `xml:"GUID"`
	Parent   string `xml:"PARENT"`

	AddressList struct {
		Lines []string `xml:"ADDRESS"`
	} `xml:"ADDRESS.LIST"`

	Pincode     string `xml:"PINCODE"`
	Mobile      string `xml:"MOBILE"`
	LedgerPhone string `xml:"LEDGERPHONE"`
	PhoneNumber string `xml:"PHONENUMBER"`
	Email       string `xml:"EMAIL"`
	LedgerEmail string `xml:"LEDGEREMAIL"`

	OpeningBalance string `xml:"OPENINGBALANCE"`
	ClosingBalance string `xml:"CLOSINGBALANCE"`
}

// parseLedgers extracts every LEDGER element from a Tally export and
// normalizes it into a Record. Element order is preserved; the change
// detector relies on input order for duplicate-key resolution.
func parseLedgers(body string) ([]record.Record, error) {
	var records []record.Record

	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			break // io.EOF or trailing garbage after the envelope
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "LEDGER" {
			continue
		}

		var l ledgerXML
		if err := dec.DecodeElement(&l, &start); err != nil {
			return nil, fmt.Errorf("malformed LEDGER element: %w", err)
		}

		var parts []string
		for _, line := range l.AddressList.Lines {
			if s := strings.TrimSpace(line); s != "" {
				parts = append(parts, s)
			}
		}

		parent := strings.TrimSpace(l.Parent)
		if parent != "" {
			parent = titleCaser.String(strings.ToLower(parent))
		}

		records = append(records, record.Record{
			GUID:           strings.TrimSpace(l.GUID),
			Name:           strings.TrimSpace(l.NameAttr),
			Parent:         parent,
			Address:        cleanAddress(strings.Join(parts, ", ")),
			Phone:          normalizePhone(firstNonEmpty(l.LedgerPhone, l.PhoneNumber, l.Mobile)),
			Email:          strings.ToLower(strings.TrimSpace(firstNonEmpty(l.Email, l.LedgerEmail))),
			Pincode:        strings.TrimSpace(l.Pincode),
			OpeningBalance: parseAmount(l.OpeningBalance),
			ClosingBalance: parseAmount(l.ClosingBalance),
		})
	}

	return records, nil
}

// parseCompanies extracts company names from a company collection export.
func parseCompanies(body string) ([]string, error) {
	type companyXML struct {
		Name string `xml:"NAME"`
	}

	var names []string
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "COMPANY" {
			continue
		}
		var c companyXML
		if err := dec.DecodeElement(&c, &start); err != nil {
			return nil, fmt.Errorf("malformed COMPANY element: %w", err)
		}
		if name := strings.TrimSpace(c.Name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// parseGroups extracts group names (NAME attribute) from a group collection
// export and returns them sorted.
func parseGroups(body string) ([]string, error) {
	var groups []string
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "GROUP" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "NAME" {
				if name := strings.TrimSpace(attr.Value); name != "" {
					groups = append(groups, name)
				}
			}
		}
		if err := dec.Skip(); err != nil {
			return nil, fmt.Errorf("malformed GROUP element: %w", err)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

// Address cleanup patterns. Ledger addresses in the wild are keyed in by
// operators and carry label prefixes, honorifics and trailing contact info.
var (
	addrLabelRe   = regexp.MustCompile(`(?i)^\s*address\s*[:\-]\s*`)
	leadSymbolsRe = regexp.MustCompile(`^[=\-:]+`)
	honorificRe   = regexp.MustCompile(`(?i)^\s*(mr|mrs|ms|dr|shri|smt|miss)\.?\s+[a-z\s.]+?,\s*`)
	afterPinRe    = regexp.MustCompile(`(\b\d{6}\b).*`)
	contactTailRe = regexp.MustCompile(`(?i)(mobile|cell|phone|email)\s*[:\-].*$`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
	doubleCommaRe = regexp.MustCompile(`,\s*,`)
)

// cleanAddress normalizes a raw comma-joined address into a form stable
// enough to fingerprint and geocode: label prefixes, honorific name
// prefixes and trailing contact details are removed, anything after the
// 6-digit pincode is dropped, and the result is title-cased.
func cleanAddress(address string) string {
	if address == "" {
		return ""
	}

	addr := strings.ToLower(strings.TrimSpace(address))
	addr = addrLabelRe.ReplaceAllString(addr, "")
	addr = strings.TrimSpace(leadSymbolsRe.ReplaceAllString(addr, ""))
	addr = honorificRe.ReplaceAllString(addr, "")
	addr = afterPinRe.ReplaceAllString(addr, "$1")
	addr = contactTailRe.ReplaceAllString(addr, "")
	addr = multiSpaceRe.ReplaceAllString(addr, " ")
	addr = doubleCommaRe.ReplaceAllString(addr, ",")
	addr = strings.Trim(addr, " ,")

	return titleCaser.String(addr)
}

var nonPhoneRe = regexp.MustCompile(`[^\d+]`)

// normalizePhone keeps digits and a leading plus only.
func normalizePhone(phone string) string {
	return nonPhoneRe.ReplaceAllString(phone, "")
}

var nonAmountRe = regexp.MustCompile(`[^\d.\-]`)

// parseAmount parses a Tally balance string ("1,23,456.78 Dr") into a
// float. Unparseable values become zero; balances are informational only
// and never fingerprinted.
func parseAmount(s string) float64 {
	s = nonAmountRe.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// firstNonEmpty returns the first value whose trimmed form is non-empty.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
