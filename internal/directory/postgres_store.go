package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// UserSchema represents the users table schema
type UserSchema struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID         string    `bun:"id,pk,type:uuid" json:"id"`
	Active     bool      `bun:"active,notnull" json:"active"`
	UserName   string    `bun:"user_name,notnull,unique" json:"user_name"`
	GivenName  string    `bun:"given_name" json:"given_name"`
	MiddleName string    `bun:"middle_name" json:"middle_name"`
	FamilyName string    `bun:"family_name" json:"family_name"`
	Email      string    `bun:"email" json:"email"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// GroupSchema represents the groups table schema
type GroupSchema struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID          string    `bun:"id,pk,type:uuid" json:"id"`
	DisplayName string    `bun:"display_name,notnull,unique" json:"display_name"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// MembershipSchema represents the memberships join table schema
type MembershipSchema struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	ID        string    `bun:"id,pk,type:uuid" json:"id"`
	GroupID   string    `bun:"group_id,notnull,unique:group_user,type:uuid" json:"group_id"`
	UserID    string    `bun:"user_id,notnull,unique:group_user,type:uuid" json:"user_id"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// userFilterColumns maps the supported user filter attributes to columns.
var userFilterColumns = map[string]string{
	"userName":   "user_name",
	"id":         "id",
	"email":      "email",
	"givenName":  "given_name",
	"familyName": "family_name",
}

// groupFilterColumns maps the supported group filter attributes to columns.
var groupFilterColumns = map[string]string{
	"displayName": "display_name",
	"id":          "id",
}

// PostgresStore implements Store with PostgreSQL storage. Every mutating
// call runs inside a transaction so multi-row changes (membership
// reconciliation, cascade deletes) commit or roll back as a unit.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresDB opens a PostgreSQL connection pool for the given DSN.
func NewPostgresDB(dsn string, maxConnections int) (*bun.DB, error) {
	if maxConnections <= 0 {
		maxConnections = 10
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(maxConnections)
	sqldb.SetMaxIdleConns(maxConnections / 2)
	sqldb.SetConnMaxLifetime(time.Hour)

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore creates a store on an open connection pool and ensures
// the schema exists.
func NewPostgresStore(ctx context.Context, db *bun.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	models := []interface{}{
		(*UserSchema)(nil),
		(*GroupSchema)(nil),
		(*MembershipSchema)(nil),
	}
	for _, model := range models {
		_, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}

// Schema/domain conversion

func schemaToUser(schema UserSchema) User {
	return User{
		ID:         schema.ID,
		Active:     schema.Active,
		UserName:   schema.UserName,
		GivenName:  schema.GivenName,
		MiddleName: schema.MiddleName,
		FamilyName: schema.FamilyName,
		Email:      schema.Email,
	}
}

func schemaToGroup(schema GroupSchema) Group {
	return Group{
		ID:          schema.ID,
		DisplayName: schema.DisplayName,
	}
}

// In-transaction helpers. They take bun.IDB so the same code serves both
// plain reads and transactional mutations.

func fetchUserSchema(ctx context.Context, idb bun.IDB, id string) (*UserSchema, error) {
	var schema UserSchema
	err := idb.NewSelect().
		Model(&schema).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError("User", "user not found")
		}
		return nil, NewInternalError("User", err)
	}
	return &schema, nil
}

func fetchGroupSchema(ctx context.Context, idb bun.IDB, id string) (*GroupSchema, error) {
	var schema GroupSchema
	err := idb.NewSelect().
		Model(&schema).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError("Group", "group not found")
		}
		return nil, NewInternalError("Group", err)
	}
	return &schema, nil
}

func groupRefsForUser(ctx context.Context, idb bun.IDB, userID string) ([]GroupRef, error) {
	var groups []GroupSchema
	err := idb.NewSelect().
		Model(&groups).
		Join("JOIN memberships AS m ON m.group_id = g.id").
		Where("m.user_id = ?", userID).
		Order("g.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, NewInternalError("User", err)
	}

	refs := make([]GroupRef, 0, len(groups))
	for _, g := range groups {
		refs = append(refs, GroupRef{
			Value:   g.ID,
			Ref:     "../Groups/" + g.ID,
			Display: g.DisplayName,
		})
	}
	return refs, nil
}

func memberRefsForGroup(ctx context.Context, idb bun.IDB, groupID string) ([]MemberRef, error) {
	var users []UserSchema
	err := idb.NewSelect().
		Model(&users).
		Join("JOIN memberships AS m ON m.user_id = u.id").
		Where("m.group_id = ?", groupID).
		Order("u.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, NewInternalError("Group", err)
	}

	refs := make([]MemberRef, 0, len(users))
	for _, u := range users {
		refs = append(refs, MemberRef{
			Value:   u.ID,
			Ref:     "../Users/" + u.ID,
			Display: strings.TrimSpace(u.GivenName + " " + u.FamilyName),
		})
	}
	return refs, nil
}

func hydrateUserSchema(ctx context.Context, idb bun.IDB, schema UserSchema) (*User, error) {
	refs, err := groupRefsForUser(ctx, idb, schema.ID)
	if err != nil {
		return nil, err
	}
	user := schemaToUser(schema)
	user.Groups = refs
	return &user, nil
}

func hydrateGroupSchema(ctx context.Context, idb bun.IDB, schema GroupSchema) (*Group, error) {
	refs, err := memberRefsForGroup(ctx, idb, schema.ID)
	if err != nil {
		return nil, err
	}
	group := schemaToGroup(schema)
	group.Members = refs
	return &group, nil
}

// resolveGroupIDs resolves group references by id first, display name
// second. An unresolvable reference aborts the transaction.
func resolveGroupIDs(ctx context.Context, idb bun.IDB, refs []RefModel) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Value != "" {
			exists, err := idb.NewSelect().
				Model((*GroupSchema)(nil)).
				Where("id = ?", ref.Value).
				Exists(ctx)
			if err != nil {
				return nil, NewInternalError("Group", err)
			}
			if exists {
				ids = append(ids, ref.Value)
				continue
			}
		}
		if ref.Display != "" {
			var schema GroupSchema
			err := idb.NewSelect().
				Model(&schema).
				Where("display_name = ?", ref.Display).
				Scan(ctx)
			if err == nil {
				ids = append(ids, schema.ID)
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, NewInternalError("Group", err)
			}
		}
		missing := ref.Value
		if missing == "" {
			missing = ref.Display
		}
		return nil, NewBadRequestError("User", fmt.Sprintf("group %s not found", missing))
	}
	return ids, nil
}

// resolveUserIDs resolves member references by id only.
func resolveUserIDs(ctx context.Context, idb bun.IDB, refs []RefModel) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		exists := false
		if ref.Value != "" {
			var err error
			exists, err = idb.NewSelect().
				Model((*UserSchema)(nil)).
				Where("id = ?", ref.Value).
				Exists(ctx)
			if err != nil {
				return nil, NewInternalError("User", err)
			}
		}
		if !exists {
			return nil, NewBadRequestError("Group", fmt.Sprintf("user %s not found", ref.Value))
		}
		ids = append(ids, ref.Value)
	}
	return ids, nil
}

func insertMembership(ctx context.Context, idb bun.IDB, groupID, userID string) error {
	exists, err := idb.NewSelect().
		Model((*MembershipSchema)(nil)).
		Where("group_id = ?", groupID).
		Where("user_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return NewInternalError("Membership", err)
	}
	if exists {
		return nil
	}

	_, err = idb.NewInsert().
		Model(&MembershipSchema{
			ID:      uuid.New().String(),
			GroupID: groupID,
			UserID:  userID,
		}).
		Exec(ctx)
	if err != nil {
		return NewInternalError("Membership", err)
	}
	return nil
}

func deleteMemberships(ctx context.Context, idb bun.IDB, column, id string) error {
	_, err := idb.NewDelete().
		Model((*MembershipSchema)(nil)).
		Where(column+" = ?", id).
		Exec(ctx)
	if err != nil {
		return NewInternalError("Membership", err)
	}
	return nil
}

// User operations

func (s *PostgresStore) ListUsers(ctx context.Context, startIndex, count int) ([]User, int, error) {
	total, err := s.db.NewSelect().Model((*UserSchema)(nil)).Count(ctx)
	if err != nil {
		return nil, 0, NewInternalError("User", err)
	}
	if total == 0 {
		return nil, 0, NewNotFoundError("User", "no users found")
	}

	lo, hi := pageBounds(startIndex, count, total)
	var schemas []UserSchema
	err = s.db.NewSelect().
		Model(&schemas).
		Order("created_at ASC").
		Offset(lo).
		Limit(hi - lo).
		Scan(ctx)
	if err != nil {
		return nil, 0, NewInternalError("User", err)
	}

	users := make([]User, 0, len(schemas))
	for _, schema := range schemas {
		user, herr := hydrateUserSchema(ctx, s.db, schema)
		if herr != nil {
			return nil, 0, herr
		}
		users = append(users, *user)
	}
	return users, total, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	schema, err := fetchUserSchema(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return hydrateUserSchema(ctx, s.db, *schema)
}

func (s *PostgresStore) FilterUsers(ctx context.Context, attribute, value string, startIndex, count int) ([]User, int, error) {
	column, ok := userFilterColumns[attribute]
	if !ok {
		return nil, 0, NewBadRequestError("User", "unsupported filter attribute: "+attribute)
	}
	value = TrimFilterValue(value)

	total, err := s.db.NewSelect().
		Model((*UserSchema)(nil)).
		Where(column+" = ?", value).
		Count(ctx)
	if err != nil {
		return nil, 0, NewInternalError("User", err)
	}
	if total == 0 {
		return nil, 0, NewNotFoundError("User", "no users found matching filter")
	}

	lo, hi := pageBounds(startIndex, count, total)
	var schemas []UserSchema
	err = s.db.NewSelect().
		Model(&schemas).
		Where(column+" = ?", value).
		Order("created_at ASC").
		Offset(lo).
		Limit(hi - lo).
		Scan(ctx)
	if err != nil {
		return nil, 0, NewInternalError("User", err)
	}

	users := make([]User, 0, len(schemas))
	for _, schema := range schemas {
		user, herr := hydrateUserSchema(ctx, s.db, schema)
		if herr != nil {
			return nil, 0, herr
		}
		users = append(users, *user)
	}
	return users, total, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, model *UserModel) (*User, error) {
	if model.UserName == "" {
		return nil, NewBadRequestError("User", "userName is required")
	}

	var created *User
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*UserSchema)(nil)).
			Where("user_name = ?", model.UserName).
			Exists(ctx)
		if err != nil {
			return NewInternalError("User", err)
		}
		if exists {
			return NewConflictError("User", "user already exists: "+model.UserName)
		}

		groupIDs, err := resolveGroupIDs(ctx, tx, model.Groups)
		if err != nil {
			return err
		}

		schema := &UserSchema{
			ID:         uuid.New().String(),
			Active:     model.Active,
			UserName:   model.UserName,
			GivenName:  model.GivenName,
			MiddleName: model.MiddleName,
			FamilyName: model.FamilyName,
			Email:      model.Email,
		}
		if _, err := tx.NewInsert().Model(schema).Exec(ctx); err != nil {
			return NewInternalError("User", err)
		}

		for _, gid := range groupIDs {
			if err := insertMembership(ctx, tx, gid, schema.ID); err != nil {
				return err
			}
		}

		created, err = hydrateUserSchema(ctx, tx, *schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, model *UserModel) (*User, error) {
	var updated *User
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		schema, err := fetchUserSchema(ctx, tx, id)
		if err != nil {
			return err
		}

		var groupIDs []string
		if model.Groups != nil {
			groupIDs, err = resolveGroupIDs(ctx, tx, model.Groups)
			if err != nil {
				return err
			}
		}

		schema.Active = model.Active
		schema.UserName = model.UserName
		schema.GivenName = model.GivenName
		schema.MiddleName = model.MiddleName
		schema.FamilyName = model.FamilyName
		schema.Email = model.Email
		schema.UpdatedAt = time.Now()

		_, err = tx.NewUpdate().
			Model(schema).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return NewInternalError("User", err)
		}

		// A payload without a groups list leaves the membership set untouched.
		if model.Groups != nil {
			if err := deleteMemberships(ctx, tx, "user_id", id); err != nil {
				return err
			}
			for _, gid := range groupIDs {
				if err := insertMembership(ctx, tx, gid, id); err != nil {
					return err
				}
			}
		}

		updated, err = hydrateUserSchema(ctx, tx, *schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) PatchUser(ctx context.Context, id string, ops []PatchOperation) (*User, error) {
	var patched *User
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		schema, err := fetchUserSchema(ctx, tx, id)
		if err != nil {
			return err
		}

		user := schemaToUser(*schema)
		for _, op := range ops {
			if op.TargetsMembers() {
				return NewBadRequestError("User", "members is not a user attribute")
			}
			switch op.Op {
			case OpAdd, OpReplace:
				applyUserFields(&user, op.Fields)
			case OpRemove:
				// Whole-attribute remove is accepted as a no-op returning the
				// current state.
			default:
				return NewForbiddenError("User", "operation not supported: "+op.Op)
			}
		}

		schema.Active = user.Active
		schema.UserName = user.UserName
		schema.GivenName = user.GivenName
		schema.MiddleName = user.MiddleName
		schema.FamilyName = user.FamilyName
		schema.Email = user.Email
		schema.UpdatedAt = time.Now()

		_, err = tx.NewUpdate().
			Model(schema).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return NewInternalError("User", err)
		}

		patched, err = hydrateUserSchema(ctx, tx, *schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteMemberships(ctx, tx, "user_id", id); err != nil {
			return err
		}

		result, err := tx.NewDelete().
			Model((*UserSchema)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return NewInternalError("User", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return NewInternalError("User", err)
		}
		if rows == 0 {
			return NewNotFoundError("User", "user not found")
		}
		return nil
	})
}

// Group operations

func (s *PostgresStore) ListGroups(ctx context.Context, startIndex, count int) ([]Group, int, error) {
	total, err := s.db.NewSelect().Model((*GroupSchema)(nil)).Count(ctx)
	if err != nil {
		return nil, 0, NewInternalError("Group", err)
	}
	if total == 0 {
		return nil, 0, NewNotFoundError("Group", "no groups found")
	}

	lo, hi := pageBounds(startIndex, count, total)
	var schemas []GroupSchema
	err = s.db.NewSelect().
		Model(&schemas).
		Order("created_at ASC").
		Offset(lo).
		Limit(hi - lo).
		Scan(ctx)
	if err != nil {
		return nil, 0, NewInternalError("Group", err)
	}

	groups := make([]Group, 0, len(schemas))
	for _, schema := range schemas {
		group, herr := hydrateGroupSchema(ctx, s.db, schema)
		if herr != nil {
			return nil, 0, herr
		}
		groups = append(groups, *group)
	}
	return groups, total, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	schema, err := fetchGroupSchema(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return hydrateGroupSchema(ctx, s.db, *schema)
}

func (s *PostgresStore) FilterGroups(ctx context.Context, attribute, value string, startIndex, count int) ([]Group, int, error) {
	column, ok := groupFilterColumns[attribute]
	if !ok {
		return nil, 0, NewBadRequestError("Group", "unsupported filter attribute: "+attribute)
	}
	value = TrimFilterValue(value)

	total, err := s.db.NewSelect().
		Model((*GroupSchema)(nil)).
		Where(column+" = ?", value).
		Count(ctx)
	if err != nil {
		return nil, 0, NewInternalError("Group", err)
	}
	if total == 0 {
		return nil, 0, NewNotFoundError("Group", "no groups found matching filter")
	}

	lo, hi := pageBounds(startIndex, count, total)
	var schemas []GroupSchema
	err = s.db.NewSelect().
		Model(&schemas).
		Where(column+" = ?", value).
		Order("created_at ASC").
		Offset(lo).
		Limit(hi - lo).
		Scan(ctx)
	if err != nil {
		return nil, 0, NewInternalError("Group", err)
	}

	groups := make([]Group, 0, len(schemas))
	for _, schema := range schemas {
		group, herr := hydrateGroupSchema(ctx, s.db, schema)
		if herr != nil {
			return nil, 0, herr
		}
		groups = append(groups, *group)
	}
	return groups, total, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, model *GroupModel) (*Group, error) {
	if model.DisplayName == "" {
		return nil, NewBadRequestError("Group", "displayName is required")
	}

	var created *Group
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*GroupSchema)(nil)).
			Where("display_name = ?", model.DisplayName).
			Exists(ctx)
		if err != nil {
			return NewInternalError("Group", err)
		}
		if exists {
			return NewConflictError("Group", "group already exists: "+model.DisplayName)
		}

		userIDs, err := resolveUserIDs(ctx, tx, model.Members)
		if err != nil {
			return err
		}

		schema := &GroupSchema{
			ID:          uuid.New().String(),
			DisplayName: model.DisplayName,
		}
		if _, err := tx.NewInsert().Model(schema).Exec(ctx); err != nil {
			return NewInternalError("Group", err)
		}

		for _, uid := range userIDs {
			if err := insertMembership(ctx, tx, schema.ID, uid); err != nil {
				return err
			}
		}

		created, err = hydrateGroupSchema(ctx, tx, *schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PostgresStore) UpdateGroup(ctx context.Context, id string, model *GroupModel) (*Group, error) {
	var updated *Group
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		schema, err := fetchGroupSchema(ctx, tx, id)
		if err != nil {
			return err
		}

		var userIDs []string
		if model.Members != nil {
			userIDs, err = resolveUserIDs(ctx, tx, model.Members)
			if err != nil {
				return err
			}
		}

		if model.DisplayName != "" {
			schema.DisplayName = model.DisplayName
		}
		schema.UpdatedAt = time.Now()

		_, err = tx.NewUpdate().
			Model(schema).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return NewInternalError("Group", err)
		}

		if model.Members != nil {
			if err := deleteMemberships(ctx, tx, "group_id", id); err != nil {
				return err
			}
			for _, uid := range userIDs {
				if err := insertMembership(ctx, tx, id, uid); err != nil {
					return err
				}
			}
		}

		updated, err = hydrateGroupSchema(ctx, tx, *schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) PatchGroup(ctx context.Context, id string, ops []PatchOperation) (*Group, error) {
	var patched *Group
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		schema, err := fetchGroupSchema(ctx, tx, id)
		if err != nil {
			return err
		}

		for _, op := range ops {
			switch op.Op {
			case OpAdd, OpReplace:
				if op.TargetsMembers() {
					userIDs, err := resolveUserIDs(ctx, tx, op.Members)
					if err != nil {
						return err
					}
					if op.Op == OpReplace {
						if err := deleteMemberships(ctx, tx, "group_id", id); err != nil {
							return err
						}
					}
					for _, uid := range userIDs {
						if err := insertMembership(ctx, tx, id, uid); err != nil {
							return err
						}
					}
					continue
				}
				if v, ok := op.Fields["displayName"]; ok {
					if name, ok := v.(string); ok && name != "" {
						schema.DisplayName = name
					}
				}
			case OpRemove:
				if op.TargetsMembers() && len(op.Members) > 0 {
					for _, ref := range op.Members {
						_, err := tx.NewDelete().
							Model((*MembershipSchema)(nil)).
							Where("group_id = ?", id).
							Where("user_id = ?", ref.Value).
							Exec(ctx)
						if err != nil {
							return NewInternalError("Membership", err)
						}
					}
				}
				// Remove without an explicit member list is a no-op returning
				// the current state.
			default:
				return NewForbiddenError("Group", "operation not supported: "+op.Op)
			}
		}

		schema.UpdatedAt = time.Now()
		_, err = tx.NewUpdate().
			Model(schema).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return NewInternalError("Group", err)
		}

		patched, err = hydrateGroupSchema(ctx, tx, *schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteMemberships(ctx, tx, "group_id", id); err != nil {
			return err
		}

		result, err := tx.NewDelete().
			Model((*GroupSchema)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return NewInternalError("Group", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return NewInternalError("Group", err)
		}
		if rows == 0 {
			return NewNotFoundError("Group", "group not found")
		}
		return nil
	})
}

// Relation views

func (s *PostgresStore) GroupsForUser(ctx context.Context, id string) ([]GroupRef, error) {
	if _, err := fetchUserSchema(ctx, s.db, id); err != nil {
		return nil, err
	}
	return groupRefsForUser(ctx, s.db, id)
}

func (s *PostgresStore) MembersForGroup(ctx context.Context, id string) ([]MemberRef, error) {
	if _, err := fetchGroupSchema(ctx, s.db, id); err != nil {
		return nil, err
	}
	return memberRefsForGroup(ctx, s.db, id)
}

// Seed inserts the sample identities used for local development. It is a
// no-op when any user already exists.
func (s *PostgresStore) Seed(ctx context.Context) error {
	count, err := s.db.NewSelect().Model((*UserSchema)(nil)).Count(ctx)
	if err != nil {
		return NewInternalError("User", err)
	}
	if count > 0 {
		return nil
	}

	john, err := s.CreateUser(ctx, &UserModel{
		Active:     true,
		UserName:   "john.doe@example.com",
		GivenName:  "John",
		FamilyName: "Doe",
		Email:      "john.doe@example.com",
	})
	if err != nil {
		return err
	}
	jane, err := s.CreateUser(ctx, &UserModel{
		Active:     true,
		UserName:   "jane.smith@example.com",
		GivenName:  "Jane",
		FamilyName: "Smith",
		Email:      "jane.smith@example.com",
	})
	if err != nil {
		return err
	}

	if _, err := s.CreateGroup(ctx, &GroupModel{
		DisplayName: "Administrators",
		Members:     []RefModel{{Value: john.ID}},
	}); err != nil {
		return err
	}
	if _, err := s.CreateGroup(ctx, &GroupModel{
		DisplayName: "Users",
		Members:     []RefModel{{Value: john.ID}, {Value: jane.ID}},
	}); err != nil {
		return err
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
