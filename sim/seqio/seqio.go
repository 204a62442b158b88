// Package seqio reads and writes sequence alignments as FASTA or PHYLIP text.
package seqio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// Record is one named sequence.
type Record struct {
	ID       string
	Sequence string
}

// Format selects the alignment text format.
type Format string

const (
	// FormatFASTA writes ">name" followed by the sequence on its own line.
	FormatFASTA Format = "fasta"
	// FormatPHYLIP writes a "count length" header then fixed-width name+sequence rows.
	FormatPHYLIP Format = "phylip"
)

// fastaAlphabet is a permissive template alphabet: records may hold nucleotides,
// codons or amino acids, and letters are never validated against it.
var fastaAlphabet = alphabet.Protein

// phylipNameWidth is the classic PHYLIP name column; longer names widen the column.
const phylipNameWidth = 10

// ParseFormat accepts "fasta" or "phylip" (case-insensitive); empty means FASTA.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "fasta":
		return FormatFASTA, nil
	case "phylip", "phy":
		return FormatPHYLIP, nil
	}
	return "", fmt.Errorf("unknown sequence format %q; valid: fasta, phylip", name)
}

// Write emits records in the given format.
func Write(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatFASTA, "":
		return WriteFASTA(w, records)
	case FormatPHYLIP:
		return WritePHYLIP(w, records)
	}
	return fmt.Errorf("unknown sequence format %q", format)
}

// WriteFASTA writes each record as a header line and one unwrapped sequence line.
func WriteFASTA(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	fw := fasta.NewWriter(bw, 1)
	for _, r := range records {
		if r.Sequence == "" {
			if _, err := fmt.Fprintf(bw, ">%s\n\n", r.ID); err != nil {
				return err
			}
			continue
		}
		// One line per sequence: the wrap width is the sequence length.
		fw.Width = len(r.Sequence)
		s := linear.NewSeq(r.ID, alphabet.BytesToLetters([]byte(r.Sequence)), fastaAlphabet)
		if _, err := fw.Write(s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WritePHYLIP writes relaxed sequential PHYLIP. All sequences must share one length.
func WritePHYLIP(w io.Writer, records []Record) error {
	length := 0
	width := phylipNameWidth
	for i, r := range records {
		if i == 0 {
			length = len(r.Sequence)
		} else if len(r.Sequence) != length {
			return fmt.Errorf("phylip: sequence %q has length %d, want %d", r.ID, len(r.Sequence), length)
		}
		if strings.ContainsAny(r.ID, " \t") {
			return fmt.Errorf("phylip: sequence name %q contains whitespace", r.ID)
		}
		if len(r.ID)+1 > width {
			width = len(r.ID) + 1
		}
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, " %d %d\n", len(records), length); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%-*s%s\n", width, r.ID, r.Sequence); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFASTA parses FASTA text; multi-line sequences are joined and whitespace is dropped.
// A record's ID is its whole header line after '>'.
func ReadFASTA(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	if err := expectHeader(br); err != nil {
		return nil, err
	}
	fr := fasta.NewReader(br, linear.NewSeq("", nil, fastaAlphabet))
	var records []Record
	for {
		s, err := fr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading fasta record %d: %w", len(records)+1, err)
		}
		l, ok := s.(*linear.Seq)
		if !ok {
			return nil, fmt.Errorf("reading fasta record %d: unexpected sequence type %T", len(records)+1, s)
		}
		id := strings.TrimSpace(l.Name())
		if desc := strings.TrimSpace(l.Description()); desc != "" {
			id += " " + desc
		}
		seq := strings.Join(strings.Fields(string(alphabet.LettersToBytes(l.Seq))), "")
		records = append(records, Record{ID: id, Sequence: seq})
	}
	return records, nil
}

// expectHeader skips leading blank space and fails unless the next byte opens a header.
func expectHeader(br *bufio.Reader) error {
	for {
		b, err := br.Peek(1)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading fasta: %w", err)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		case '>':
			return nil
		default:
			return fmt.Errorf("fasta: sequence data before first header")
		}
	}
}
