package generation

import (
	"regexp"
	"strings"
)

// Failure codes recorded on GenerationFailure rows. The classification is
// advisory: it changes what gets recorded, never control flow.
const (
	CodeStartInterrupted = "start_interrupted"
	CodeUpstreamTimeout  = "upstream_timeout"
	CodeUpstreamCapacity = "upstream_capacity"
	CodeInputInvalid     = "input_invalid"
	CodeStorageDownload  = "storage_download"
	CodeStorageUpload    = "storage_upload"
	CodeUnknown          = "unknown"
)

// Classification is the result of mapping a raw provider or storage error
// string into the stable taxonomy.
type Classification struct {
	Code         string
	ProviderCode string
	Message      string
}

var (
	parenCodeRe = regexp.MustCompile(`\(code:\s*([A-Za-z0-9_-]+)\)`)
	eTokenRe    = regexp.MustCompile(`\b(E\d{3,5})\b`)

	capacityRe = regexp.MustCompile(`rate.?limit|too many requests|\b429\b|capacity|overloaded|quota`)
	timeoutRe  = regexp.MustCompile(`timed?.?out|deadline exceeded|connection reset`)
	invalidRe  = regexp.MustCompile(`bad request|invalid|unsupported|unprocessable|\b400\b|\b422\b`)
)

// Classify maps a raw error message to the taxonomy. An embedded
// "(code: XX)" or E-number token is preserved as the provider code.
func Classify(raw string) Classification {
	msg := strings.TrimSpace(raw)
	cls := Classification{Code: CodeUnknown, Message: msg}
	if msg == "" {
		return cls
	}
	if m := parenCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		cls.ProviderCode = m[1]
	} else if m := eTokenRe.FindStringSubmatch(msg); len(m) == 2 {
		cls.ProviderCode = m[1]
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "interrupt"):
		cls.Code = CodeStartInterrupted
	case timeoutRe.MatchString(lower):
		cls.Code = CodeUpstreamTimeout
	case capacityRe.MatchString(lower):
		cls.Code = CodeUpstreamCapacity
	case strings.Contains(lower, "download"):
		cls.Code = CodeStorageDownload
	case strings.Contains(lower, "upload"):
		cls.Code = CodeStorageUpload
	case invalidRe.MatchString(lower):
		cls.Code = CodeInputInvalid
	}
	return cls
}
