// Package validate holds the pure checks applied to a configuration before
// it is stored: service name rules, size limits, the structural schema and
// extraction of a self-declared version.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/document"
)

const (
	// MaxServiceNameLength is the longest accepted service name.
	MaxServiceNameLength = 100

	// DefaultMaxSize is the default limit for raw and serialized payloads.
	DefaultMaxSize = 1 << 20

	// MaxVersion is the largest version the storage column can hold.
	MaxVersion = math.MaxInt32
)

var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// structureSchema requires database.host and database.port and bounds an
// optional top-level version. Other keys are allowed at every level.
const structureSchema = `{
  "type": "object",
  "required": ["database"],
  "properties": {
    "database": {
      "type": "object",
      "required": ["host", "port"],
      "properties": {
        "host": {"type": "string", "minLength": 1},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      }
    },
    "version": {"type": "integer", "minimum": 1, "maximum": 2147483647}
  }
}`

var schema = mustSchema(structureSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compiling structure schema: %v", err))
	}
	return sch
}

// ServiceName checks that name is 1..100 characters of [A-Za-z0-9_-].
func ServiceName(name string) error {
	switch {
	case name == "":
		return conferr.New(conferr.InvalidServiceName, "Service name cannot be empty")
	case len(name) > MaxServiceNameLength:
		return conferr.New(conferr.InvalidServiceName,
			fmt.Sprintf("Service name too long (max %d characters)", MaxServiceNameLength))
	case !serviceNamePattern.MatchString(name):
		return conferr.New(conferr.InvalidServiceName,
			"Service name can only contain letters, numbers, underscores and hyphens")
	}
	return nil
}

// Size rejects raw payloads longer than maxBytes.
func Size(raw []byte, maxBytes int) error {
	if len(raw) > maxBytes {
		return tooLarge(maxBytes)
	}
	return nil
}

// DocumentSize rejects trees whose canonical JSON form exceeds maxBytes.
func DocumentSize(tree any, maxBytes int) error {
	data, err := document.Marshal(tree)
	if err != nil {
		return conferr.Wrap(conferr.ParseError, "", err)
	}
	return Size(data, maxBytes)
}

func tooLarge(maxBytes int) error {
	return conferr.New(conferr.PayloadTooLarge,
		fmt.Sprintf("Configuration too large (max %d bytes)", maxBytes))
}

// Structure returns every schema violation in tree, formatted as
// "field: description". An empty result means the tree is valid.
func Structure(tree any) []string {
	result, err := schema.Validate(gojsonschema.NewGoLoader(tree))
	if err != nil {
		return []string{fmt.Sprintf("(root): %v", err)}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	sort.Strings(violations)
	return violations
}

// DeclaredVersion returns the document's own positive integer version.
// Integral floats such as 3.0 are accepted.
func DeclaredVersion(doc document.Document) (int, bool) {
	switch v := doc["version"].(type) {
	case int:
		return v, v > 0 && v <= MaxVersion
	case int64:
		return int(v), v > 0 && v <= MaxVersion
	case uint64:
		return int(v), v > 0 && v <= MaxVersion //nolint:gosec // bounded by MaxVersion
	case float64:
		if v != math.Trunc(v) || v <= 0 || v > MaxVersion {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
