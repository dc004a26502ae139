package trips

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatNumber собирает человекочитаемый номер рейса: PREFIX-0001.
// После 9999 номер просто удлиняется, паддинг не ломается.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// ParseNumber выделяет числовой суффикс номера с данным префиксом.
func ParseNumber(prefix, number string) (int64, bool) {
	rest, ok := strings.CutPrefix(number, prefix+"-")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
