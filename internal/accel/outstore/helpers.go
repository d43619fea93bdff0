package outstore

import (
	"fmt"
	"strconv"
)

func itoa(v int) string {
	return strconv.Itoa(v)
}

func rangeStr(base, end int) string {
	return fmt.Sprintf("[%d, %d)", base, end)
}
