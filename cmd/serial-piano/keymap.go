package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Keymap maps a button code to a note, or to a controller number when negative.
type Keymap map[int]int

// ParseKeymap reads one "code:note" pair per line; blank lines and lines
// starting with # are skipped.
func ParseKeymap(r io.Reader) (Keymap, error) {
	keymap := Keymap{}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s := strings.Split(line, ":")
		if len(s) != 2 {
			return nil, fmt.Errorf("line %d: want code:note, got %q", n, line)
		}
		code, err := strconv.Atoi(strings.TrimSpace(s[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		note, err := strconv.Atoi(strings.TrimSpace(s[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if code < 0 || code > 255 || note < -127 || note > 127 {
			return nil, fmt.Errorf("line %d: %d:%d out of range", n, code, note)
		}
		keymap[code] = note
	}
	return keymap, sc.Err()
}

func LoadKeymap(filename string) (Keymap, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKeymap(f)
}
