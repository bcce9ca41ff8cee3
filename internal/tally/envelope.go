package tally

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// escapeXML escapes text for safe inclusion in a request envelope.
// Company names and credentials routinely contain '&' and quotes.
func escapeXML(s string) string {
	var b strings.Builder
	// xml.EscapeText only fails on a failing writer; strings.Builder never does.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// loginBlock renders the optional LOGIN element. Tally ignores credentials
// for unsecured companies, so the block is omitted entirely when either
// value is empty rather than sending blank tags.
func loginBlock(username, password string) string {
	if username == "" || password == "" {
		return ""
	}
	return fmt.Sprintf(`<LOGIN><USERNAME>%s</USERNAME><PASSWORD>%s</PASSWORD></LOGIN>`,
		escapeXML(username), escapeXML(password))
}

// versionEnvelope is a minimal export request used as a connectivity probe.
func versionEnvelope() string {
	return `<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Export</TALLYREQUEST>
		<TYPE>Data</TYPE>
		<ID>TallyVersion</ID>
	</HEADER>
</ENVELOPE>`
}

// companiesEnvelope requests the list of open companies.
func companiesEnvelope() string {
	return `<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Export</TALLYREQUEST>
		<TYPE>Collection</TYPE>
		<ID>List of Companies</ID>
	</HEADER>
	<BODY>
		<DESC>
			<TDL>
				<TDLMESSAGE>
					<COLLECTION NAME="Companies">
						<TYPE>Company</TYPE>
						<FETCH>Name</FETCH>
					</COLLECTION>
				</TDLMESSAGE>
			</TDL>
		</DESC>
	</BODY>
</ENVELOPE>`
}

// groupsEnvelope requests all ledger group names for a company.
func groupsEnvelope(company, username, password string) string {
	return fmt.Sprintf(`<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Export</TALLYREQUEST>
		<TYPE>Collection</TYPE>
		<ID>All Groups</ID>
	</HEADER>
	<BODY>
		<DESC>
			<STATICVARIABLES>
				<SVEXPORTFORMAT>$SysName:XML</SVEXPORTFORMAT>
				<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>
				%s
			</STATICVARIABLES>
			<TDL>
				<TDLMESSAGE>
					<COLLECTION NAME="All Groups">
						<TYPE>Group</TYPE>
						<FETCH>NAME</FETCH>
					</COLLECTION>
				</TDLMESSAGE>
			</TDL>
		</DESC>
	</BODY>
</ENVELOPE>`, escapeXML(company), loginBlock(username, password))
}

// securityCheckEnvelope probes whether a company rejects anonymous access.
func securityCheckEnvelope(company string) string {
	return fmt.Sprintf(`<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Export</TALLYREQUEST>
		<TYPE>Collection</TYPE>
		<ID>Security Check</ID>
	</HEADER>
	<BODY>
		<DESC>
			<STATICVARIABLES>
				<SVEXPORTFORMAT>$SysName:XML</SVEXPORTFORMAT>
				<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>
			</STATICVARIABLES>
			<TDL>
				<TDLMESSAGE>
					<COLLECTION NAME="Security Check">
						<TYPE>Company</TYPE>
						<FETCH>NAME</FETCH>
					</COLLECTION>
				</TDLMESSAGE>
			</TDL>
		</DESC>
	</BODY>
</ENVELOPE>`, escapeXML(company))
}

// ledgerDumpEnvelope requests every ledger master with the field set the
// parser understands. Filtering by parent group happens middleware-side;
// TDL collection filters are unreliable across Tally releases.
func ledgerDumpEnvelope(company, username, password string) string {
	return fmt.Sprintf(`<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Export</TALLYREQUEST>
		<TYPE>Collection</TYPE>
		<ID>Ledger Dump</ID>
	</HEADER>
	<BODY>
		<DESC>
			<STATICVARIABLES>
				<SVEXPORTFORMAT>$SysName:XML</SVEXPORTFORMAT>
				<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>
				%s
			</STATICVARIABLES>
			<TDL>
				<TDLMESSAGE>
					<COLLECTION NAME="Ledger Dump">
						<TYPE>Ledger</TYPE>
						<FETCH>
							NAME,
							GUID,
							PARENT,
							ADDRESS.LIST,
							PINCODE,
							STATENAME,
							COUNTRYNAME,
							MOBILE,
							LEDGERPHONE,
							PHONENUMBER,
							EMAIL,
							LEDGEREMAIL,
							OPENINGBALANCE,
							CLOSINGBALANCE
						</FETCH>
					</COLLECTION>
				</TDLMESSAGE>
			</TDL>
		</DESC>
	</BODY>
</ENVELOPE>`, escapeXML(company), loginBlock(username, password))
}

// ledgerByGUIDEnvelope requests a single ledger filtered by GUID. Used by
// the update protocol to confirm the target exists and to learn its exact
// current name before issuing an Alter.
func ledgerByGUIDEnvelope(company, username, password, guid string) string {
	return fmt.Sprintf(`<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Export</TALLYREQUEST>
		<TYPE>Collection</TYPE>
		<ID>Ledger Details</ID>
	</HEADER>
	<BODY>
		<DESC>
			<STATICVARIABLES>
				<SVEXPORTFORMAT>$$SysName:XML</SVEXPORTFORMAT>
				<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>
				%s
			</STATICVARIABLES>
			<TDL>
				<TDLMESSAGE>
					<COLLECTION NAME="Ledger Details">
						<TYPE>Ledger</TYPE>
						<FETCH>NAME, GUID, PARENT, ADDRESS.LIST</FETCH>
						<FILTER>GuidFilter</FILTER>
					</COLLECTION>
					<SYSTEM TYPE="Formulae" NAME="GuidFilter">$$IsEqual:$Guid:"%s"</SYSTEM>
				</TDLMESSAGE>
			</TDL>
		</DESC>
	</BODY>
</ENVELOPE>`, escapeXML(company), loginBlock(username, password), escapeXML(guid))
}

// alterAddressEnvelope builds the import request that replaces a ledger's
// address lines. Tally's Alter action matches on the NAME attribute as well
// as the GUID, which is why the update protocol fetches the exact current
// name first. The new address is split on commas into ordered ADDRESS lines;
// blank segments are skipped.
func alterAddressEnvelope(company, username, password, guid, name, address string) string {
	var lines strings.Builder
	lines.WriteString("<ADDRESS.LIST>")
	for _, part := range strings.Split(address, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lines.WriteString("<ADDRESS>")
		lines.WriteString(escapeXML(part))
		lines.WriteString("</ADDRESS>")
	}
	lines.WriteString("</ADDRESS.LIST>")

	return fmt.Sprintf(`<ENVELOPE>
	<HEADER>
		<VERSION>1</VERSION>
		<TALLYREQUEST>Import Data</TALLYREQUEST>
		<TYPE>Data</TYPE>
		<ID>Ledger Update</ID>
	</HEADER>
	<BODY>
		<DESC>
			<STATICVARIABLES>
				<SVEXPORTFORMAT>$$SysName:XML</SVEXPORTFORMAT>
				<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>
				%s
			</STATICVARIABLES>
		</DESC>
		<DATA>
			<TALLYMESSAGE>
				<LEDGER NAME="%s" ACTION="Alter">
					<GUID>%s</GUID>
					%s
				</LEDGER>
			</TALLYMESSAGE>
		</DATA>
	</BODY>
</ENVELOPE>`, escapeXML(company), loginBlock(username, password),
		escapeXML(name), escapeXML(guid), lines.String())
}
