package trace

import (
	"bufio"
	"fmt"
	"io"
)

// RateLogHeader is the first line of a written rate log.
const RateLogHeader = "Site_Index\tPartition_Index\tRate_Category"

// RateLog collects site rate-category records in alignment order.
type RateLog struct {
	Records []SiteRateRecord
}

// NewRateLog creates a RateLog ready for recording.
func NewRateLog() *RateLog {
	return &RateLog{Records: make([]SiteRateRecord, 0)}
}

// Record appends a site record.
func (l *RateLog) Record(record SiteRateRecord) {
	l.Records = append(l.Records, record)
}

// AppendPartition appends the categories (0-based) drawn for one partition's sites,
// numbering sites after those already recorded. partition is 1-based.
func (l *RateLog) AppendPartition(partition int, categories []int) {
	offset := len(l.Records)
	for i, c := range categories {
		l.Record(SiteRateRecord{Site: offset + i + 1, Partition: partition, Category: c + 1})
	}
}

// WriteTo writes the header line and one tab-separated line per site.
func (l *RateLog) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	n, err := fmt.Fprintln(bw, RateLogHeader)
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, r := range l.Records {
		n, err = fmt.Fprintf(bw, "%d\t%d\t%d\n", r.Site, r.Partition, r.Category)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}
