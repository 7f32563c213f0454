package llm

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

const previewLimit = 160

// argPreview renders a compact single-line view of tool arguments for logs
// and ledger inspection. Top-level string fields are truncated individually
// so one long field does not swallow the rest.
func argPreview(args json.RawMessage) string {
	s := string(args)
	parsed := gjson.ParseBytes(args)
	if parsed.IsObject() {
		var fields []string
		parsed.ForEach(func(key, value gjson.Result) bool {
			v := value.String()
			if len(v) > 40 {
				v = v[:37] + "..."
			}
			fields = append(fields, key.String()+"="+v)
			return true
		})
		s = strings.Join(fields, " ")
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > previewLimit {
		s = s[:previewLimit-3] + "..."
	}
	return s
}
