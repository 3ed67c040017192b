package sepa

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxEndToEndIDLength is the pain.008 limit for EndToEndId and MsgId.
	MaxEndToEndIDLength = 35
	exportIDPrefixLen   = 22
	exportIDSuffixLen   = 12
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// RandomString returns n random lowercase hex characters.
func RandomString(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}

// MakeExportID builds the end-to-end id of an exported invoice:
// "{number}-{creditor}" cut to 22 characters, then "-" and 12 random
// characters.
func MakeExportID(number, creditorName string) string {
	return makeExportID(number, creditorName, RandomString(exportIDSuffixLen))
}

func makeExportID(number, creditorName, suffix string) string {
	name := number + "-" + nonAlnum.ReplaceAllString(creditorName, "")
	if len(name) > exportIDPrefixLen {
		name = name[:exportIDPrefixLen]
	}
	return name + "-" + suffix
}

// NewMessageID returns a fresh batch message id.
func NewMessageID() string {
	return "MSG" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
