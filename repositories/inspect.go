package repositories

import (
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectPrefixes lists the key families of the store, in display order.
var InspectPrefixes = []string{"msg:", "mid:", "unr:", "last:", "dedup:", "user:", "uid:", "att:"}

// DescribeEntry turns a raw key/value into a row for the debug inspector
// and the chatctl inspect command.
func DescribeEntry(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	family, _, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(family)

	switch family {
	case "msg":
		m, err := decodeMessage(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s -> %s [%s/%s] %q",
			m.SenderID, m.ReceiverID, m.Type, m.Status, truncate(m.Content, 40))
	case "user":
		u, err := decodeUser(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s %s (%s)", u.ID, u.Role, u.DisplayName)
	case "att":
		// Attachment payloads can be large, only the size is shown.
		row.Detail = fmt.Sprintf("%d bytes", len(val))
	default:
		// Index entries point at a message or user key.
		row.Detail = "-> " + string(val)
	}
	return row
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
