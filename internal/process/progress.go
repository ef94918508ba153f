package process

import (
	"strconv"
	"strings"
)

// ProgressPrefix marks console lines that carry transfer progress rather
// than text meant for the user. Fields are tab separated:
//
//	!progress <operation> <side> <overall%> <file%> <cps> <directory> <filename>
const ProgressPrefix = "!progress\t"

const progressFields = 7

// ProgressRecord is one decoded progress line.
type ProgressRecord struct {
	Operation       string
	Side            string
	OverallProgress float64
	FileProgress    float64
	CPS             int
	Directory       string
	FileName        string
}

// ParseProgressLine decodes a progress line. It returns false for ordinary
// console output and for progress lines it cannot decode.
func ParseProgressLine(line string) (ProgressRecord, bool) {
	rest, ok := strings.CutPrefix(line, ProgressPrefix)
	if !ok {
		return ProgressRecord{}, false
	}

	fields := strings.SplitN(rest, "\t", progressFields)
	if len(fields) != progressFields {
		return ProgressRecord{}, false
	}

	overall, err := strconv.Atoi(fields[2])
	if err != nil {
		return ProgressRecord{}, false
	}
	file, err := strconv.Atoi(fields[3])
	if err != nil {
		return ProgressRecord{}, false
	}
	cps, err := strconv.Atoi(fields[4])
	if err != nil {
		return ProgressRecord{}, false
	}

	return ProgressRecord{
		Operation:       fields[0],
		Side:            fields[1],
		OverallProgress: clampPercent(overall),
		FileProgress:    clampPercent(file),
		CPS:             cps,
		Directory:       fields[5],
		FileName:        fields[6],
	}, true
}

func clampPercent(p int) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 1
	default:
		return float64(p) / 100
	}
}
