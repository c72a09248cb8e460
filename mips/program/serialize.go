package program

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Serialized image container. All integers little-endian, matching the
// byte order of the program data itself.
//
//	magic "MIPSIMG\0" | version u32 | entry u32
//	segment count u32 | { section u8, base u32, length u32, bytes }
//	symbol count u32  | { name, address u32, section u8, global u8 }
//	line count u32    | { address u32, file, line u32 }
//
// Strings are length-prefixed (u32). The version is bumped only for
// incompatible changes; readers reject versions they do not know.

const serializeVersion = 1

var magic = [8]byte{'M', 'I', 'P', 'S', 'I', 'M', 'G', 0}

// Save writes the image to w in its stable container format.
func (img *Image) Save(w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := writeU32(w, serializeVersion); err != nil {
		return err
	}
	if err := writeU32(w, img.Entry); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(img.Segments))); err != nil {
		return err
	}
	for i := range img.Segments {
		seg := &img.Segments[i]
		if _, err := w.Write([]byte{byte(seg.Section)}); err != nil {
			return err
		}
		if err := writeU32(w, seg.Base); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(seg.Data))); err != nil {
			return err
		}
		if _, err := w.Write(seg.Data); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(img.Symbols))); err != nil {
		return err
	}
	for i := range img.Symbols {
		sym := &img.Symbols[i]
		if err := writeString(w, sym.Name); err != nil {
			return err
		}
		if err := writeU32(w, sym.Address); err != nil {
			return err
		}
		global := byte(0)
		if sym.Global {
			global = 1
		}
		if _, err := w.Write([]byte{byte(sym.Section), global}); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(img.Lines))); err != nil {
		return err
	}
	for i := range img.Lines {
		entry := &img.Lines[i]
		if err := writeU32(w, entry.Address); err != nil {
			return err
		}
		if err := writeString(w, entry.File); err != nil {
			return err
		}
		if err := writeU32(w, uint32(entry.Line)); err != nil {
			return err
		}
	}

	return nil
}

// Load reads an image previously written by Save.
func Load(r io.Reader) (*Image, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading image magic: %w", err)
	}
	if header != magic {
		return nil, fmt.Errorf("not a program image (bad magic %q)", header[:])
	}

	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if version != serializeVersion {
		return nil, fmt.Errorf("unsupported image version %d", version)
	}

	img := &Image{}
	if img.Entry, err = readU32(r); err != nil {
		return nil, err
	}

	segments, err := readU32(r)
	if err != nil {
		return nil, err
	}
	img.Segments = make([]Segment, 0, segments)
	for i := uint32(0); i < segments; i++ {
		var section [1]byte
		if _, err := io.ReadFull(r, section[:]); err != nil {
			return nil, err
		}
		base, err := readU32(r)
		if err != nil {
			return nil, err
		}
		length, err := readU32(r)
		if err != nil {
			return nil, err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		img.Segments = append(img.Segments, Segment{
			Section: Section(section[0]),
			Base:    base,
			Data:    data,
		})
	}

	symbols, err := readU32(r)
	if err != nil {
		return nil, err
	}
	img.Symbols = make([]Symbol, 0, symbols)
	for i := uint32(0); i < symbols; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		address, err := readU32(r)
		if err != nil {
			return nil, err
		}
		var tail [2]byte
		if _, err := io.ReadFull(r, tail[:]); err != nil {
			return nil, err
		}
		img.Symbols = append(img.Symbols, Symbol{
			Name:    name,
			Address: address,
			Section: Section(tail[0]),
			Global:  tail[1] != 0,
		})
	}

	lines, err := readU32(r)
	if err != nil {
		return nil, err
	}
	img.Lines = make([]LineEntry, 0, lines)
	for i := uint32(0); i < lines; i++ {
		address, err := readU32(r)
		if err != nil {
			return nil, err
		}
		file, err := readString(r)
		if err != nil {
			return nil, err
		}
		line, err := readU32(r)
		if err != nil {
			return nil, err
		}
		img.Lines = append(img.Lines, LineEntry{
			Address: address,
			File:    file,
			Line:    int(line),
		})
	}

	return img, nil
}

func writeU32(w io.Writer, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	length, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
