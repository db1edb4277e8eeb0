package worker

import (
	"regexp"
	"strings"

	"github.com/jupark12/contract-extract/models"
)

// Section keys of models.ContractFields.
const (
	SectionContractData      = "contract_data"
	SectionOrganisation      = "organisation_details"
	SectionBuyer             = "buyer_details"
	SectionFinancialApproval = "financial_approval_details"
	SectionPayingAuthority   = "paying_authority_details"
	SectionConsignee         = "consignee_details"
	SectionServiceProvider   = "service_provider_details"
	SectionServiceDetails    = "service_details"
)

var (
	gstinPattern    = regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][1-9A-Z]Z\d\b`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	landlinePattern = regexp.MustCompile(`\b\d{3,5}-\d{6,8}-?\b`)
	mobilePattern   = regexp.MustCompile(`\b0?[6-9]\d{9}\b`)
	addressPattern  = regexp.MustCompile(`(?is)Address\s*[:\-]?\s*(.*)`)

	contractNoPattern   = regexp.MustCompile(`(?i)Contract No\.?\s*[:\-]?\s*(GEM[C]?-?\d+)`)
	generatedPattern    = regexp.MustCompile(`Generated Date\s*[:\-]?\s*([0-9]{1,2}-[A-Za-z]{3}-[0-9]{4})`)
	bidNoPattern        = regexp.MustCompile(`(?i)Bid/RA/PBP No\.?\s*[:\-]?\s*([A-Z0-9/]+)`)
	durationPattern     = regexp.MustCompile(`(?i)Duration in Months for which service is required\s*[:\-]?\s*(\d+)`)
	contractAmountRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Total Contract Value Including All Duties and Taxes\s*\(INR\)\s*(\d+)`),
		regexp.MustCompile(`(?is)Amount of Contract.*?\(INR\)\s*(\d+)`),
	}

	sellerIDPattern       = regexp.MustCompile(`(?i)(?:जेम विक्रेता आईडी|GeM Seller ID)\s*[:।\-|]?\s*([A-Z0-9]{10,})`)
	msmePattern           = regexp.MustCompile(`(?i)(?:एमएसएमई पंजीकरण संख्या|MSME Registration Number)\s*[:।\-|]?\s*([A-Z0-9]+)`)
	sellerGSTINPattern    = regexp.MustCompile(`(?i)(?:जीएसटीआईएन|GSTIN)\s*[:।\-|]?\s*([A-Z0-9]+(?:\s*\([A-Z]\))?)`)
	sellerAddressPattern  = regexp.MustCompile(`(?is)Address\s*[:\-]?\s*(.*?)(?:\n\s*(?:MSME|GSTIN)|\z)`)
	companyNamePattern    = regexp.MustCompile(`Company Name\s*[:\-]?\s*([^\n|]+)`)
	msmeStatusPattern     = regexp.MustCompile(`MSME Status as verified by buyer\s*[:\-]?\s*([^\n|]+)`)
	socialCategoryPattern = regexp.MustCompile(`MSE Social Category\s*[:\-]?\s*([^\n|]+)`)
	genderPattern         = regexp.MustCompile(`MSE Gender\s*[:\-]?\s*([^\n|]+)`)

	typePattern       = regexp.MustCompile(`Type\s*[:\-]?\s*([^\n|]+)`)
	ministryPattern   = regexp.MustCompile(`Ministry\s*[:\-]?\s*([^\n|]+)`)
	departmentPattern = regexp.MustCompile(`Department\s*[:\-]?\s*([^\n|]+)`)
	orgNamePattern    = regexp.MustCompile(`Organisation Name\s*[:\-]?\s*([^\n|]+)`)
	officeZonePattern = regexp.MustCompile(`(?i)Office Zone\s*[:\-]?\s*([A-Z]+)`)

	designationPattern   = regexp.MustCompile(`Designation\s*[:\-]?\s*([^\n|]+)`)
	ifdPattern           = regexp.MustCompile(`(?i)IFD Concurrence\s*[:\-]?\s*(Yes|No)`)
	adminApprovalPattern = regexp.MustCompile(`Designation of Administrative Approval\s*[:\-]?\s*([^\n|]+)`)
	finApprovalPattern   = regexp.MustCompile(`Designation of Financial Approval\s*[:\-]?\s*([^\n|]+)`)

	rolePattern        = regexp.MustCompile(`(?i)Role\s*[:\-]?\s*([A-Z]+)`)
	paymentModePattern = regexp.MustCompile(`(?i)Payment Mode\s*[:\-]?\s*([A-Za-z ]+)`)
	serviceDescPattern = regexp.MustCompile(`(?i)Service Description\s*[:\-]?\s*(.*)`)

	startDatePattern = regexp.MustCompile(`Service Start Date.*?([0-9]{1,2}-[A-Za-z]{3}-[0-9]{4})`)
	endDatePattern   = regexp.MustCompile(`Service End Date\s*[:\-]?\s*([0-9]{1,2}-[A-Za-z]{3}-[0-9]{4})`)
	categoryPattern  = regexp.MustCompile(`Category Name\s*[:\-]?\s*([^\n|]+)`)
	billingPattern   = regexp.MustCompile(`(?i)Billing Cycle\s*[:\-]?\s*([a-z]+)`)
	districtPattern  = regexp.MustCompile(`(?i)District\s+(NA|[A-Za-z\s]+)`)
	zipcodePattern   = regexp.MustCompile(`(?i)Zipcode\s+(NA|\d+)`)
	vehiclePattern   = regexp.MustCompile(`(?i)Vehicle Type\s+([A-Z]+)`)
	carTypePattern   = regexp.MustCompile(`(?is)Type of car\s*\(Please select at least 3 options\)\s*(.*)`)
)

// block is a titled region of a GeM contract, running from its heading to
// the next heading when one is given.
type block struct {
	bounded *regexp.Regexp
	open    *regexp.Regexp
}

func newBlock(start, end string) block {
	b := block{open: regexp.MustCompile(`(?is)` + regexp.QuoteMeta(start) + `(.*)`)}
	if end != "" {
		b.bounded = regexp.MustCompile(`(?is)` + regexp.QuoteMeta(start) + `(.*?)` + regexp.QuoteMeta(end))
	}
	return b
}

func (b block) in(text string) string {
	if b.bounded != nil {
		if m := b.bounded.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if m := b.open.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var (
	organisationBlock    = newBlock("Organisation Details", "Buyer Details")
	buyerBlock           = newBlock("Buyer Details", "Financial Approval")
	financialBlock       = newBlock("Financial Approval Details", "Paying Authority")
	payingAuthorityBlock = newBlock("Paying Authority Details", "Consignee")
	consigneeBlock       = newBlock("Consignee Details", "Service Provider Details")
	serviceProviderBlock = newBlock("Service Provider Details", "")
	serviceDetailsBlock  = newBlock("Service Details", "")
)

// find returns the first capture group of re in text, or the whole match
// when re has no group.
func find(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[0])
}

func firstOf(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if v := find(re, text); v != "" {
			return v
		}
	}
	return ""
}

func address(re *regexp.Regexp, text string) string {
	return strings.Join(strings.Fields(find(re, text)), " ")
}

// ExtractFields reads the labelled fields of a GeM contract out of its plain
// text. Missing fields are empty strings.
func ExtractFields(text string) models.ContractFields {
	return models.ContractFields{
		SectionContractData:      contractData(text),
		SectionOrganisation:      organisationDetails(organisationBlock.in(text)),
		SectionBuyer:             buyerDetails(buyerBlock.in(text)),
		SectionFinancialApproval: financialApproval(financialBlock.in(text)),
		SectionPayingAuthority:   payingAuthority(payingAuthorityBlock.in(text)),
		SectionConsignee:         consignee(consigneeBlock.in(text)),
		SectionServiceProvider:   serviceProvider(text, serviceProviderBlock.in(text)),
		SectionServiceDetails:    serviceDetails(serviceDetailsBlock.in(text)),
	}
}

func contractData(text string) map[string]string {
	return map[string]string{
		"Contract No":             find(contractNoPattern, text),
		"Contract Generated Date": find(generatedPattern, text),
		"Bid / RA / PBP No":       find(bidNoPattern, text),
		"Duration":                find(durationPattern, text),
		"Amount of Contract (Including All Duties and Taxes INR)": contractAmount(text),
	}
}

// contractAmount undoes the doubled digits some PDFs produce for the value cell.
func contractAmount(text string) string {
	for _, re := range contractAmountRules {
		v := strings.ReplaceAll(find(re, text), ",", "")
		if v == "" {
			continue
		}
		if half := len(v) / 2; len(v)%2 == 0 && v[:half] == v[half:] {
			return v[:half]
		}
		return v
	}
	return ""
}

func organisationDetails(b string) map[string]string {
	return map[string]string{
		"Type":              find(typePattern, b),
		"Ministry":          find(ministryPattern, b),
		"Department":        find(departmentPattern, b),
		"Organisation Name": find(orgNamePattern, b),
		"Office Zone":       find(officeZonePattern, b),
	}
}

func buyerDetails(b string) map[string]string {
	return map[string]string{
		"Designation": find(designationPattern, b),
		"Contact No.": firstOf(b, landlinePattern, mobilePattern),
		"Email ID":    find(emailPattern, b),
		"GSTIN":       find(gstinPattern, b),
		"Address":     address(addressPattern, b),
	}
}

func financialApproval(b string) map[string]string {
	return map[string]string{
		"IFD Concurrence":                        find(ifdPattern, b),
		"Designation of Administrative Approval": find(adminApprovalPattern, b),
		"Designation of Financial Approval":      find(finApprovalPattern, b),
	}
}

func payingAuthority(b string) map[string]string {
	return map[string]string{
		"Role":         find(rolePattern, b),
		"Payment Mode": find(paymentModePattern, b),
		"Designation":  find(designationPattern, b),
		"Email ID":     find(emailPattern, b),
		"GSTIN":        find(gstinPattern, b),
		"Address":      address(addressPattern, b),
	}
}

func consignee(b string) map[string]string {
	gstin := find(gstinPattern, b)
	if gstin == "" {
		gstin = "-"
	}
	return map[string]string{
		"Contact":             firstOf(b, landlinePattern, mobilePattern),
		"Email ID":            find(emailPattern, b),
		"GSTIN":               gstin,
		"Address":             address(addressPattern, b),
		"Service Description": find(serviceDescPattern, b),
	}
}

// serviceProvider reads the seller id from the whole text; it sits in the
// page header rather than in the section.
func serviceProvider(text, b string) map[string]string {
	return map[string]string{
		"GeM Seller ID":                    find(sellerIDPattern, text),
		"Company Name":                     find(companyNamePattern, b),
		"Contact No.":                      find(mobilePattern, b),
		"Email ID":                         find(emailPattern, b),
		"Address":                          address(sellerAddressPattern, b),
		"MSME Registration Number":         find(msmePattern, b),
		"GSTIN":                            find(sellerGSTINPattern, b),
		"MSME Status as verified by buyer": find(msmeStatusPattern, b),
		"MSE Social Category":              find(socialCategoryPattern, b),
		"MSE Gender":                       find(genderPattern, b),
	}
}

func serviceDetails(b string) map[string]string {
	return map[string]string{
		"Service Start Date (latest by)": find(startDatePattern, b),
		"Service End Date":               find(endDatePattern, b),
		"Category Name":                  find(categoryPattern, b),
		"Billing Cycle":                  find(billingPattern, b),
		"District":                       find(districtPattern, b),
		"Zipcode":                        find(zipcodePattern, b),
		"Vehicle Type":                   find(vehiclePattern, b),
		"Type of car (Please select at least 3 options)": find(carTypePattern, b),
	}
}
