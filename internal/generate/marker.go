package generate

import (
	"strings"

	"report-desk/internal/domain"
)

// Marker is the fixed prefix the server puts before the path of a generated report.
const Marker = "Report generated:"

const reportsSegment = "reports/"

// InterpretReply turns a generation reply into a GenerationResult. A reply
// without the marker yields a result with no artifact.
func InterpretReply(raw string) (domain.GenerationResult, error) {
	filename, _, err := parseArtifactFilename(raw)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return domain.GenerationResult{RawMessage: raw, ArtifactFilename: filename}, nil
}

// parseArtifactFilename extracts the report file name from a generation reply.
//
// found is false when the reply carries no marker; the reply is then purely
// informational. When the marker is present the file name is the exact text after
// the last "reports/" that follows it. A marker without such a segment, or with
// nothing usable after it, is a malformed reply.
func parseArtifactFilename(raw string) (filename string, found bool, err error) {
	idx := strings.Index(raw, Marker)
	if idx < 0 {
		return "", false, nil
	}

	rest := raw[idx+len(Marker):]
	seg := strings.LastIndex(rest, reportsSegment)
	if seg < 0 {
		return "", true, domain.NewError(domain.KindMalformedResponse, "the server reported a generated report but gave no file location")
	}

	filename = rest[seg+len(reportsSegment):]
	if strings.TrimSpace(filename) == "" {
		return "", true, domain.NewError(domain.KindMalformedResponse, "the server reported a generated report without a file name")
	}
	return filename, true, nil
}
