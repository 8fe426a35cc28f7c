package directory

import (
	"strings"
)

// User is a provisioned identity. Groups is derived from the live
// membership set at read time and is never stored.
type User struct {
	ID         string     `json:"id"`
	Active     bool       `json:"active"`
	UserName   string     `json:"userName"`
	GivenName  string     `json:"givenName"`
	MiddleName string     `json:"middleName"`
	FamilyName string     `json:"familyName"`
	Email      string     `json:"email"`
	Groups     []GroupRef `json:"groups,omitempty"`
}

// Group is a provisioned group. Members is derived the same way Groups is
// on User.
type Group struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Members     []MemberRef `json:"members,omitempty"`
}

// Membership joins one user to one group. A (GroupID, UserID) pair is
// unique among live memberships, and both endpoints must exist.
type Membership struct {
	ID      string `json:"id"`
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// GroupRef is the user-side view of a membership.
type GroupRef struct {
	Value   string `json:"value"`
	Ref     string `json:"$ref"`
	Display string `json:"display"`
}

// MemberRef is the group-side view of a membership.
type MemberRef struct {
	Value   string `json:"value"`
	Ref     string `json:"$ref"`
	Display string `json:"display"`
}

// RefModel is a membership reference as supplied by a caller: an id, a
// display name, or both. References resolve by id first, display second.
type RefModel struct {
	Value   string
	Display string
}

// UserModel carries the caller-supplied attributes for a create or a full
// update. A nil Groups slice means the membership set is left untouched; an
// empty non-nil slice clears it.
type UserModel struct {
	Active     bool
	UserName   string
	GivenName  string
	MiddleName string
	FamilyName string
	Email      string
	Groups     []RefModel
}

// GroupModel is the group counterpart of UserModel.
type GroupModel struct {
	DisplayName string
	Members     []RefModel
}

// DisplayName returns the name shown for a user in member listings.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.GivenName + " " + u.FamilyName)
}

// Canonical patch operations produced by the SCIM patch interpreter.
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// PatchOperation is one normalized mutation. Fields holds scalar attribute
// updates keyed by canonical attribute name; Members holds membership
// references for operations targeting the members attribute.
type PatchOperation struct {
	Op      string
	Path    string
	Fields  map[string]any
	Members []RefModel
}

// TargetsMembers reports whether the operation addresses the members
// attribute rather than scalars.
func (op PatchOperation) TargetsMembers() bool {
	return op.Path == "members" || len(op.Members) > 0
}

// User filter attributes allowed by the repository contract. Anything else
// is rejected with a BadRequest rather than returning silently empty
// results.
var userFilterAttrs = map[string]func(*User) string{
	"userName":   func(u *User) string { return u.UserName },
	"id":         func(u *User) string { return u.ID },
	"email":      func(u *User) string { return u.Email },
	"givenName":  func(u *User) string { return u.GivenName },
	"familyName": func(u *User) string { return u.FamilyName },
}

var groupFilterAttrs = map[string]func(*Group) string{
	"displayName": func(g *Group) string { return g.DisplayName },
	"id":          func(g *Group) string { return g.ID },
}

// TrimFilterValue strips one layer of surrounding quotes from a filter
// value, matching how identity providers quote `attribute eq value`.
func TrimFilterValue(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
