package generate

import (
	"testing"

	"report-desk/internal/domain"
)

// TestInterpretReply covers well-formed, informational, and malformed replies.
func TestInterpretReply(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      string
		wantFound bool
		wantKind  domain.ErrorKind
	}{
		{
			name:      "absolute server path",
			raw:       "Report generated: /app/reports/ai_report_42.docx",
			want:      "ai_report_42.docx",
			wantFound: true,
		},
		{
			name:      "relative path",
			raw:       "Report generated: reports/summary.pdf",
			want:      "summary.pdf",
			wantFound: true,
		},
		{
			name:      "last reports segment wins",
			raw:       "Report generated: /srv/reports/archive/reports/q3.docx",
			want:      "q3.docx",
			wantFound: true,
		},
		{
			name:      "nested path after last segment kept verbatim",
			raw:       "Report generated: /data/reports/2024/q3.docx",
			want:      "2024/q3.docx",
			wantFound: true,
		},
		{
			name:      "reports segment before marker ignored",
			raw:       "reports/ queue: Report generated: /app/reports/x.pdf",
			want:      "x.pdf",
			wantFound: true,
		},
		{
			name:      "no trimming of exact substring",
			raw:       "Report generated: /app/reports/my report.docx ",
			want:      "my report.docx ",
			wantFound: true,
		},
		{
			name:      "windows path",
			raw:       `Report generated: C:\out\reports/a.docx`,
			want:      "a.docx",
			wantFound: true,
		},
		{
			name: "informational",
			raw:  "Your report is queued and will be ready soon",
		},
		{
			name: "empty reply",
			raw:  "",
		},
		{
			name: "marker case differs",
			raw:  "report generated: /app/reports/a.docx",
		},
		{
			name:      "marker without path",
			raw:       "Report generated:",
			wantFound: true,
			wantKind:  domain.KindMalformedResponse,
		},
		{
			name:      "marker without reports segment",
			raw:       "Report generated: /app/out/a.docx",
			wantFound: true,
			wantKind:  domain.KindMalformedResponse,
		},
		{
			name:      "nothing after segment",
			raw:       "Report generated: /app/reports/",
			wantFound: true,
			wantKind:  domain.KindMalformedResponse,
		},
		{
			name:      "only whitespace after segment",
			raw:       "Report generated: /app/reports/  \n",
			wantFound: true,
			wantKind:  domain.KindMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InterpretReply(tt.raw)
			if tt.wantKind != "" {
				if !domain.IsKind(err, tt.wantKind) {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				if got != (domain.GenerationResult{}) {
					t.Fatalf("result = %+v, want zero on error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.HasArtifact() != tt.wantFound {
				t.Fatalf("HasArtifact = %v, want %v", got.HasArtifact(), tt.wantFound)
			}
			if got.ArtifactFilename != tt.want {
				t.Fatalf("filename = %q, want %q", got.ArtifactFilename, tt.want)
			}
			if got.RawMessage != tt.raw {
				t.Fatalf("raw message = %q, want %q", got.RawMessage, tt.raw)
			}
		})
	}
}
