package journal

import "github.com/justapithecus/overdub/types"

// Summary counts journaled sessions by outcome.
type Summary struct {
	Total          int   `json:"total"`
	Succeeded      int   `json:"succeeded"`
	LocateFailed   int   `json:"locate_failed"`
	DownloadFailed int   `json:"download_failed"`
	Errors         int   `json:"errors"`
	BytesSent      int64 `json:"bytes_sent"`
}

// Summarize aggregates records.
func Summarize(records []SessionRecord) Summary {
	var s Summary
	for i := range records {
		s.Total++
		s.BytesSent += records[i].BytesSent
		switch records[i].Outcome {
		case types.OutcomeSuccess:
			s.Succeeded++
		case types.OutcomeLocateFailed:
			s.LocateFailed++
		case types.OutcomeDownloadFailed:
			s.DownloadFailed++
		default:
			s.Errors++
		}
	}
	return s
}
