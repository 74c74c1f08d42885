package tablecache

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ruslano69/datachat/pkg/table"
)

// Columnar block layout (before zstd):
//
//	magic "DCC1"
//	uint32 ncols, uint32 nrows
//	table name (string)
//	per column: name, type (strings), uint8 width
//	per column: nrows cells, each uint8 flag (0 = null, 1 = value)
//	                          followed by the value string when flag = 1
//
// Strings are uint32 length + bytes. Column-major cell order keeps
// same-typed values adjacent for the compressor.

var blockMagic = []byte("DCC1")

const nullFlag, valueFlag = 0, 1

func encodeColumnar(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(blockMagic)
	writeU32(&buf, uint32(t.NumCols()))
	writeU32(&buf, uint32(t.NumRows()))
	writeString(&buf, t.Name)

	for _, c := range t.Columns {
		writeString(&buf, c.Name)
		writeString(&buf, string(c.Type))
		buf.WriteByte(uint8(c.Width))
	}

	for col := 0; col < t.NumCols(); col++ {
		for _, row := range t.Rows {
			cell := row[col]
			if cell == "" {
				buf.WriteByte(nullFlag)
				continue
			}
			buf.WriteByte(valueFlag)
			writeString(&buf, cell)
		}
	}
	return buf.Bytes(), nil
}

func decodeColumnar(block []byte) (*table.Table, error) {
	r := bytes.NewReader(block)

	magic := make([]byte, len(blockMagic))
	if _, err := r.Read(magic); err != nil || !bytes.Equal(magic, blockMagic) {
		return nil, fmt.Errorf("bad block magic")
	}

	ncols, err := readU32(r)
	if err != nil {
		return nil, err
	}
	nrows, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	cols := make([]table.Column, ncols)
	for i := range cols {
		if cols[i].Name, err = readString(r); err != nil {
			return nil, err
		}
		typ, err := readString(r)
		if err != nil {
			return nil, err
		}
		cols[i].Type = table.DataType(typ)
		width, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read column width: %w", err)
		}
		cols[i].Width = int(width)
	}

	rows := make([][]string, nrows)
	for i := range rows {
		rows[i] = make([]string, ncols)
	}
	for col := uint32(0); col < ncols; col++ {
		for row := uint32(0); row < nrows; row++ {
			flag, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("read cell flag: %w", err)
			}
			if flag == nullFlag {
				continue
			}
			if rows[row][col], err = readString(r); err != nil {
				return nil, err
			}
		}
	}
	return table.New(name, cols, rows), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("string length %d exceeds remaining block", n)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}
