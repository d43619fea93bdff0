package indexgen

import (
	"fmt"
	"strconv"
)

func itoa(v int) string {
	return strconv.Itoa(v)
}

func boolStr(v bool) string {
	return strconv.FormatBool(v)
}

func rangeStr(base, end int) string {
	return fmt.Sprintf("[%d, %d)", base, end)
}
