package models

// ExtractedDocument is one row of the generated workbook: what the worker
// managed to read out of a single uploaded PDF.
type ExtractedDocument struct {
	FileName  string
	Title     string
	Pages     int
	CharCount int
	Excerpt   string
	Fields    ContractFields
	Err       string
}

// Processed reports whether the file yielded any text.
func (d ExtractedDocument) Processed() bool {
	return d.Err == "" && d.CharCount > 0
}

// ContractFields maps a contract section to its labelled values.
type ContractFields map[string]map[string]string

// Get returns the value of label in section. The "-" placeholder reads as
// empty; "NA" is kept as written.
func (f ContractFields) Get(section, label string) string {
	v := f[section][label]
	if v == "-" {
		return ""
	}
	return v
}
