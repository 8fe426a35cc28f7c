package scim

import (
	"encoding/json"

	"github.com/scimgate/scimgate/internal/directory"
)

// Schema URNs for the resources this endpoint serves.
const (
	SchemaUser         = "urn:ietf:params:scim:schemas:core:2.0:User"
	SchemaGroup        = "urn:ietf:params:scim:schemas:core:2.0:Group"
	SchemaListResponse = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	SchemaError        = "urn:ietf:params:scim:api:messages:2.0:Error"
)

// Meta is the SCIM meta block rendered on every resource.
type Meta struct {
	ResourceType string `json:"resourceType"`
	Location     string `json:"location"`
}

// Name is the SCIM complex name attribute.
type Name struct {
	GivenName  string `json:"givenName"`
	MiddleName string `json:"middleName"`
	FamilyName string `json:"familyName"`
}

// Email is one entry of the SCIM emails list. This endpoint stores a single
// address and renders it as the primary work email.
type Email struct {
	Primary bool   `json:"primary"`
	Value   string `json:"value"`
	Type    string `json:"type"`
}

// UserResource is the wire representation of a user.
type UserResource struct {
	Schemas  []string             `json:"schemas"`
	ID       string               `json:"id"`
	Active   bool                 `json:"active"`
	UserName string               `json:"userName"`
	Name     Name                 `json:"name"`
	Emails   []Email              `json:"emails"`
	Groups   []directory.GroupRef `json:"groups"`
	Meta     Meta                 `json:"meta"`
}

// GroupResource is the wire representation of a group.
type GroupResource struct {
	Schemas     []string              `json:"schemas"`
	ID          string                `json:"id"`
	DisplayName string                `json:"displayName"`
	Members     []directory.MemberRef `json:"members"`
	Meta        Meta                  `json:"meta"`
}

// RenderUser flattens a domain user into its SCIM shape. location is the
// request path of the resource itself.
func RenderUser(u *directory.User, location string) UserResource {
	groups := u.Groups
	if groups == nil {
		groups = []directory.GroupRef{}
	}
	return UserResource{
		Schemas:  []string{SchemaUser},
		ID:       u.ID,
		Active:   u.Active,
		UserName: u.UserName,
		Name: Name{
			GivenName:  u.GivenName,
			MiddleName: u.MiddleName,
			FamilyName: u.FamilyName,
		},
		Emails: []Email{{Primary: true, Value: u.Email, Type: "work"}},
		Groups: groups,
		Meta:   Meta{ResourceType: "User", Location: location},
	}
}

// RenderGroup flattens a domain group into its SCIM shape.
func RenderGroup(g *directory.Group, location string) GroupResource {
	members := g.Members
	if members == nil {
		members = []directory.MemberRef{}
	}
	return GroupResource{
		Schemas:     []string{SchemaGroup},
		ID:          g.ID,
		DisplayName: g.DisplayName,
		Members:     members,
		Meta:        Meta{ResourceType: "Group", Location: location},
	}
}

// wireRef accepts the membership reference spellings identity providers
// actually send: "$ref" or "ref" for the location, "display" or
// "displayName" for the name.
type wireRef struct {
	Value   string
	Display string
}

func (r *wireRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value       string `json:"value"`
		Display     string `json:"display"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Value = raw.Value
	r.Display = raw.Display
	if r.Display == "" {
		r.Display = raw.DisplayName
	}
	return nil
}

func refModels(refs []wireRef) []directory.RefModel {
	if refs == nil {
		return nil
	}
	models := make([]directory.RefModel, 0, len(refs))
	for _, r := range refs {
		models = append(models, directory.RefModel{Value: r.Value, Display: r.Display})
	}
	return models
}

// ParseUserPayload decodes a POST/PUT user body leniently: missing fields
// default, the first email wins, and a payload without a groups key yields
// a nil Groups slice so relations stay untouched on update.
func ParseUserPayload(body []byte) (*directory.UserModel, error) {
	var raw struct {
		Active   any    `json:"active"`
		UserName string `json:"userName"`
		Name     struct {
			GivenName  string `json:"givenName"`
			MiddleName string `json:"middleName"`
			FamilyName string `json:"familyName"`
		} `json:"name"`
		Emails []struct {
			Value string `json:"value"`
		} `json:"emails"`
		Groups []wireRef `json:"groups"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, directory.NewBadRequestError("User", "Invalid JSON format")
	}

	model := &directory.UserModel{
		Active:     coerceBool(raw.Active),
		UserName:   raw.UserName,
		GivenName:  raw.Name.GivenName,
		MiddleName: raw.Name.MiddleName,
		FamilyName: raw.Name.FamilyName,
		Groups:     refModels(raw.Groups),
	}
	if len(raw.Emails) > 0 {
		model.Email = raw.Emails[0].Value
	}
	return model, nil
}

// ParseGroupPayload decodes a POST/PUT group body. A payload without a
// members key yields a nil Members slice.
func ParseGroupPayload(body []byte) (*directory.GroupModel, error) {
	var raw struct {
		DisplayName string    `json:"displayName"`
		Members     []wireRef `json:"members"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, directory.NewBadRequestError("Group", "Invalid JSON format")
	}

	return &directory.GroupModel{
		DisplayName: raw.DisplayName,
		Members:     refModels(raw.Members),
	}, nil
}

// coerceBool accepts JSON booleans and the string spellings some providers
// send for the active flag.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "True"
	}
	return false
}
