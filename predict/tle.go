package predict

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseTLE reads satellites from two-line element text, with or without
// the customary name line above each element set.
func ParseTLE(lines []string) ([]*Satellite, error) {
	var sats []*Satellite
	name := ""
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \r")
		switch {
		case line == "":
		case strings.HasPrefix(line, "1 "):
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "2 ") {
				return nil, fmt.Errorf("element line 1 at line %d has no matching line 2", i+1)
			}
			if len(line) < 7 {
				return nil, fmt.Errorf("short element line at line %d", i+1)
			}
			catnum, err := strconv.Atoi(strings.TrimSpace(line[2:7]))
			if err != nil {
				return nil, fmt.Errorf("bad catalog number at line %d: %w", i+1, err)
			}
			if name == "" {
				name = strconv.Itoa(catnum)
			}
			sats = append(sats, NewSatellite(name, catnum, line, strings.TrimRight(lines[i+1], " \r")))
			name = ""
			i++
		default:
			name = strings.TrimSpace(line)
		}
	}
	return sats, nil
}

// LoadTLEFile reads a TLE file from disk.
func LoadTLEFile(path string) ([]*Satellite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sats, err := ParseTLE(lines)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sats, nil
}
