package action

import (
	"regexp"
	"strings"
)

// offerHandlePattern matches offer:<uuid> handles, with optional wrapping
// parentheses or brackets.
var offerHandlePattern = regexp.MustCompile(`[ \t]*[(\[]?offer:[0-9a-fA-F]{8}(?:-[0-9a-fA-F]{4}){3}-[0-9a-fA-F]{12}[)\]]?`)

// StripOfferHandles removes internal offer handles from text a person will
// read, such as an email body or an assistant reply. Returns the cleaned text
// and the number of handles removed.
func StripOfferHandles(text string) (string, int) {
	matches := offerHandlePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}
	return strings.TrimSpace(offerHandlePattern.ReplaceAllString(text, "")), len(matches)
}
