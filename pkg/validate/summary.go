package validate

import "github.com/txn2/config-service/pkg/document"

// Summary is the dry-run report for a configuration.
type Summary struct {
	Valid    bool            `json:"valid"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings"`
	Metadata SummaryMetadata `json:"metadata"`
}

// SummaryMetadata describes the shape of a configuration.
type SummaryMetadata struct {
	Version           *int `json:"version"`
	KeysCount         int  `json:"keys_count"`
	HasDatabaseConfig bool `json:"has_database_config"`
	HasCustomFields   bool `json:"has_custom_fields"`
}

// Summarize validates tree and reports its shape without failing.
func Summarize(tree any) Summary {
	s := Summary{Errors: []string{}, Warnings: []string{}}

	if violations := Structure(tree); len(violations) > 0 {
		s.Errors = append(s.Errors, violations...)
	} else {
		s.Valid = true
	}

	doc, ok := document.AsDocument(tree)
	if !ok {
		return s
	}

	if v, ok := DeclaredVersion(doc); ok {
		s.Metadata.Version = &v
	} else if _, present := doc["version"]; !present {
		s.Warnings = append(s.Warnings, "no version declared; the next sequential version will be assigned")
	}
	s.Metadata.KeysCount = len(doc)
	_, s.Metadata.HasDatabaseConfig = doc["database"]
	for k := range doc {
		if k != "version" && k != "database" {
			s.Metadata.HasCustomFields = true
			break
		}
	}
	return s
}
