package scim

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/scimgate/scimgate/internal/directory"
)

// memberFilterPath matches the filtered remove path some providers send for
// a single membership, e.g. members[value eq "2819c223-7f76"].
var memberFilterPath = regexp.MustCompile(`(?i)^members\[value\s+eq\s+"?([^"\]]+?)"?\]$`)

// ParsePatchRequest normalizes a raw PATCH body into canonical operations.
// Providers send several shapes of the same request: an Operations array of
// {op, value} objects, path-qualified scalar operations, membership
// operations with a ref list, an Operations array nested one level inside
// another, and occasionally a bare operation object with no array at all.
// resource names the target type for error reporting.
func ParsePatchRequest(resource string, body []byte) ([]directory.PatchOperation, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, directory.NewBadRequestError(resource, "Invalid JSON format")
	}

	rawOps := collectRawOperations(root)
	if len(rawOps) == 0 {
		return nil, directory.NewBadRequestError(resource, "Missing or invalid Operations array")
	}

	ops := make([]directory.PatchOperation, 0, len(rawOps))
	for _, raw := range rawOps {
		op, err := canonicalize(resource, raw)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// collectRawOperations extracts the operation objects from the decoded
// body, flattening one level of nested Operations wrappers.
func collectRawOperations(root map[string]any) []map[string]any {
	candidates := operationList(root["Operations"])
	if candidates == nil {
		// A bare operation object without the enclosing array.
		if _, ok := root["op"]; ok {
			candidates = []map[string]any{root}
		}
	}

	var ops []map[string]any
	for _, candidate := range candidates {
		if nested := operationList(candidate["Operations"]); nested != nil {
			ops = append(ops, nested...)
			continue
		}
		ops = append(ops, candidate)
	}
	return ops
}

func operationList(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		ops := make([]map[string]any, 0, len(t))
		for _, entry := range t {
			if m, ok := entry.(map[string]any); ok {
				ops = append(ops, m)
			}
		}
		return ops
	case map[string]any:
		return []map[string]any{t}
	}
	return nil
}

func canonicalize(resource string, raw map[string]any) (directory.PatchOperation, error) {
	opName, _ := raw["op"].(string)
	opName = strings.ToLower(strings.TrimSpace(opName))
	switch opName {
	case directory.OpAdd, directory.OpReplace, directory.OpRemove:
	default:
		return directory.PatchOperation{}, directory.NewForbiddenError(resource, "Operation Not Supported")
	}

	path, _ := raw["path"].(string)
	path = strings.TrimSpace(path)
	value := raw["value"]

	// members[value eq "id"] targets one membership by id.
	if m := memberFilterPath.FindStringSubmatch(path); m != nil {
		return directory.PatchOperation{
			Op:      opName,
			Path:    "members",
			Members: []directory.RefModel{{Value: m[1]}},
		}, nil
	}

	if strings.EqualFold(path, "members") {
		members := refList(value)
		if members == nil && opName != directory.OpRemove {
			return directory.PatchOperation{}, directory.NewBadRequestError(resource, "Missing value for operation")
		}
		return directory.PatchOperation{Op: opName, Path: "members", Members: members}, nil
	}

	if path != "" {
		attr := canonicalAttribute(path)
		op := directory.PatchOperation{Op: opName, Path: attr, Fields: map[string]any{}}
		if opName == directory.OpRemove {
			return op, nil
		}
		if value == nil {
			return directory.PatchOperation{}, directory.NewBadRequestError(resource, "Missing value for operation")
		}
		if attr != "" {
			op.Fields[attr] = value
		}
		return op, nil
	}

	// No path: the value carries the whole mutation.
	if opName == directory.OpRemove {
		return directory.PatchOperation{Op: opName, Members: refList(value)}, nil
	}
	if value == nil {
		return directory.PatchOperation{}, directory.NewBadRequestError(resource, "Missing value for operation")
	}
	if members := refList(value); members != nil {
		return directory.PatchOperation{Op: opName, Path: "members", Members: members}, nil
	}
	fields, members := flattenValue(value)
	if members != nil {
		return directory.PatchOperation{Op: opName, Path: "members", Members: members}, nil
	}
	return directory.PatchOperation{Op: opName, Fields: fields}, nil
}

// flattenValue maps an object-valued operation onto canonical scalar
// attributes. The nested name object and the emails list are unpacked; a
// members key turns the operation into a membership mutation. Unknown keys
// are dropped so provider-specific extras do not fail the request.
func flattenValue(value any) (map[string]any, []directory.RefModel) {
	fields := map[string]any{}
	obj, ok := value.(map[string]any)
	if !ok {
		return fields, nil
	}

	var members []directory.RefModel
	for key, v := range obj {
		if strings.EqualFold(key, "members") {
			members = refList(v)
			continue
		}
		if strings.EqualFold(key, "name") {
			if name, ok := v.(map[string]any); ok {
				for sub, sv := range name {
					if attr := canonicalAttribute(sub); attr != "" {
						fields[attr] = sv
					}
				}
			}
			continue
		}
		if strings.EqualFold(key, "emails") {
			if first := firstEmail(v); first != "" {
				fields["email"] = first
			}
			continue
		}
		if attr := canonicalAttribute(key); attr != "" {
			fields[attr] = v
		}
	}
	return fields, members
}

// canonicalAttribute maps a path or object key onto one of the scalar
// attributes the repository understands. Matching is case-insensitive and
// tolerates name. prefixes and emails sub-paths; anything unrecognized maps
// to the empty string.
func canonicalAttribute(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(strings.ToLower(key), "name.")
	if strings.HasPrefix(key, "emails") {
		return "email"
	}
	switch key {
	case "active":
		return "active"
	case "username":
		return "userName"
	case "givenname":
		return "givenName"
	case "middlename":
		return "middleName"
	case "familyname":
		return "familyName"
	case "email":
		return "email"
	case "displayname":
		return "displayName"
	}
	return ""
}

func refList(value any) []directory.RefModel {
	entries, ok := value.([]any)
	if !ok {
		return nil
	}
	refs := make([]directory.RefModel, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		ref := directory.RefModel{}
		if v, ok := obj["value"].(string); ok {
			ref.Value = v
		}
		if d, ok := obj["display"].(string); ok {
			ref.Display = d
		} else if d, ok := obj["displayName"].(string); ok {
			ref.Display = d
		}
		refs = append(refs, ref)
	}
	return refs
}

func firstEmail(value any) string {
	entries, ok := value.([]any)
	if !ok || len(entries) == 0 {
		return ""
	}
	if obj, ok := entries[0].(map[string]any); ok {
		if v, ok := obj["value"].(string); ok {
			return v
		}
	}
	return ""
}
