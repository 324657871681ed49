// Package jsonpath reads single values out of JSON response bodies.
package jsonpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup reads the value at a JSONPath expression such as "$.token". A
// missing or null value, an empty path, or a body that is not JSON is reported
// as absent.
func Lookup(json []byte, path string) (string, bool) {
	if len(json) == 0 || path == "" || !gjson.ValidBytes(json) {
		return "", false
	}

	result := gjson.GetBytes(json, convertToGjsonPath(path))
	if !result.Exists() || result.Type == gjson.Null {
		return "", false
	}
	return result.String(), true
}

// convertToGjsonPath converts a JSONPath expression to gjson syntax.
//
//	$.user.email     -> user.email
//	$['token']       -> token
//	$.items[0].id    -> items.0.id
func convertToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}
	path = strings.TrimPrefix(path, ".")

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)

	return strings.TrimPrefix(path, ".")
}
