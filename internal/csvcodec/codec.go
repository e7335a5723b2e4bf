// Package csvcodec reads subscriber import files and writes export files.
//
// Import files must carry a header row naming the "Name" and "Email" columns
// (exact, case-sensitive); other columns are ignored and column order is free.
// Export files are "ID,Name,Email" followed by one row per subscriber.
package csvcodec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/jmehdipour/subscribers/internal/model"
)

const (
	ColumnName  = "Name"
	ColumnEmail = "Email"
)

var exportHeader = []string{"ID", "Name", "Email"}

var (
	// ErrHeader means the import file has no usable header row.
	ErrHeader = errors.New("csv: header must contain Name and Email columns")
	// ErrMalformedRow is returned for a single unreadable row; reading can continue.
	ErrMalformedRow = errors.New("csv: malformed row")
)

// ImportRow is one data row of an import file. Line is 1-based and counts the header.
type ImportRow struct {
	Line  int
	Name  string
	Email string
}

type ImportReader struct {
	r        *csv.Reader
	nameIdx  int
	emailIdx int
	width    int
}

// NewImportReader consumes the header row and locates the Name and Email columns.
func NewImportReader(src io.Reader) (*ImportReader, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}

	ir := &ImportReader{r: r, nameIdx: -1, emailIdx: -1, width: len(header)}
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		switch col {
		case ColumnName:
			if ir.nameIdx < 0 {
				ir.nameIdx = i
			}
		case ColumnEmail:
			if ir.emailIdx < 0 {
				ir.emailIdx = i
			}
		}
	}
	if ir.nameIdx < 0 || ir.emailIdx < 0 {
		return nil, fmt.Errorf("%w: got %q", ErrHeader, strings.Join(header, ","))
	}
	return ir, nil
}

// Next returns the next data row, io.EOF at the end of input, or an error
// wrapping ErrMalformedRow for a row that cannot be used. After a malformed
// row the caller may keep calling Next.
func (ir *ImportReader) Next() (ImportRow, error) {
	rec, err := ir.r.Read()
	if errors.Is(err, io.EOF) {
		return ImportRow{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return ImportRow{Line: pe.StartLine}, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, pe.StartLine, pe.Err)
		}
		return ImportRow{}, err
	}

	line, _ := ir.r.FieldPos(0)
	if len(rec) != ir.width {
		return ImportRow{Line: line}, fmt.Errorf("%w: line %d: %d fields, header has %d",
			ErrMalformedRow, line, len(rec), ir.width)
	}
	return ImportRow{
		Line:  line,
		Name:  rec[ir.nameIdx],
		Email: rec[ir.emailIdx],
	}, nil
}

// Rows iterates the remaining rows. Iteration stops after io.EOF or any error
// that does not wrap ErrMalformedRow.
func (ir *ImportReader) Rows() iter.Seq2[ImportRow, error] {
	return func(yield func(ImportRow, error) bool) {
		for {
			row, err := ir.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(row, err) {
				return
			}
			if err != nil && !errors.Is(err, ErrMalformedRow) {
				return
			}
		}
	}
}

// WriteExport writes the header and one row per subscriber in the given order.
func WriteExport(w io.Writer, subs []model.Subscriber) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	rec := make([]string, 3)
	for _, s := range subs {
		rec[0] = strconv.FormatInt(s.ID, 10)
		rec[1] = s.Name
		rec[2] = s.Email
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func SerializeExport(subs []model.Subscriber) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteExport(&buf, subs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
