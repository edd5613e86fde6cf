package social

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/graphdb"
)

// NameKey is the indexed property holding a user's name.
const NameKey = "name"

// User is a person in the directory.
type User struct {
	ID   graph.ID `json:"id"`
	Name string   `json:"name"`
}

// Friendship is an unordered pair of user names.
type Friendship struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Directory manages users and friendships in a graph store.
type Directory struct {
	store  *graphdb.Store
	logger *zap.Logger
}

// NewDirectory returns a directory backed by store. A nil logger disables
// logging.
func NewDirectory(store *graphdb.Store, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, logger: logger.Named("social")}
}

// CreateUser adds a user named name. Names are unique: a second user with
// the same name fails with graph.ErrConstraintViolation.
func (d *Directory) CreateUser(ctx context.Context, name string) (User, error) {
	var u User
	err := d.store.Update(ctx, func(tx *graphdb.Tx) error {
		id, err := addUser(tx, name)
		u = User{ID: id, Name: name}
		return err
	})
	if err != nil {
		return User{}, err
	}
	d.logger.Info("Created user", zap.String("name", name), zap.Stringer("id", u.ID))
	return u, nil
}

// Befriend links users a and b in both directions. Both relationships are
// created or neither is. Befriending existing friends is a no-op.
func (d *Directory) Befriend(ctx context.Context, a, b string) error {
	err := d.store.Update(ctx, func(tx *graphdb.Tx) error {
		return befriend(tx, a, b)
	})
	if err != nil {
		return err
	}
	d.logger.Info("Befriended users", zap.String("a", a), zap.String("b", b))
	return nil
}

// Populate creates users and then friendships in a single transaction. If
// any step fails nothing is created.
func (d *Directory) Populate(ctx context.Context, names []string, friendships []Friendship) error {
	err := d.store.Update(ctx, func(tx *graphdb.Tx) error {
		for _, name := range names {
			if _, err := addUser(tx, name); err != nil {
				return err
			}
		}
		for _, f := range friendships {
			if err := befriend(tx, f.A, f.B); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		d.logger.Info("Created user", zap.String("name", name))
	}
	return nil
}

// FindUser looks a user up by name. found is false when there is no such
// user.
func (d *Directory) FindUser(name string) (u User, found bool, err error) {
	id, found, err := d.store.LookupSingle(NameKey, graph.String(name))
	if err != nil || !found {
		return User{}, false, err
	}
	return User{ID: id, Name: name}, true, nil
}

// FriendsOf lists the users name has befriended, in the order the
// friendships were made. found is false when there is no such user; that
// is not an error.
func (d *Directory) FriendsOf(name string) (friends []User, found bool, err error) {
	u, found, err := d.FindUser(name)
	if err != nil || !found {
		return nil, found, err
	}

	friends = []User{}
	for relID := range d.store.Traverse(u.ID, graph.Outgoing, graph.IsFriendOf) {
		rel, err := d.store.Relationship(relID)
		if err != nil {
			// deleted by a commit since the traversal began
			continue
		}
		friends = append(friends, User{ID: rel.End, Name: d.name(rel.End)})
	}
	return friends, true, nil
}

// Users lists every user in creation order.
func (d *Directory) Users() []User {
	var users []User
	for relID := range d.store.Traverse(graph.RootID, graph.Outgoing, graph.User) {
		rel, err := d.store.Relationship(relID)
		if err != nil {
			continue
		}
		users = append(users, User{ID: rel.End, Name: d.name(rel.End)})
	}
	return users
}

func (d *Directory) name(id graph.ID) string {
	v, _ := d.store.Property(id, NameKey)
	s, _ := v.AsString()
	return s
}

// RemoveAll deletes every user with all of their relationships, clears the
// reference node and drops the name index, in one transaction. It returns
// the number of users removed.
func (d *Directory) RemoveAll(ctx context.Context) (int, error) {
	var removed []string
	err := d.store.Update(ctx, func(tx *graphdb.Tx) error {
		removed = removed[:0]
		userRels, err := tx.Relationships(graph.RootID, graph.Outgoing, graph.User)
		if err != nil {
			return err
		}
		for _, relID := range userRels {
			rel, err := tx.Relationship(relID)
			if err != nil {
				return err
			}
			user := rel.End
			name, _, err := tx.Property(user, NameKey)
			if err != nil {
				return err
			}
			if err := tx.DeleteRelationship(relID); err != nil {
				return err
			}
			// sever all ties in either direction before removing the user
			ties, err := tx.Relationships(user, graph.Both)
			if err != nil {
				return err
			}
			for _, tie := range ties {
				if err := tx.DeleteRelationship(tie); err != nil {
					return err
				}
			}
			if err := tx.DeleteNode(user); err != nil {
				return err
			}
			s, _ := name.AsString()
			removed = append(removed, s)
		}

		rest, err := tx.Relationships(graph.RootID, graph.Both)
		if err != nil {
			return err
		}
		for _, relID := range rest {
			if err := tx.DeleteRelationship(relID); err != nil {
				return err
			}
		}
		return tx.DropIndex(NameKey)
	})
	if err != nil {
		return 0, err
	}
	for _, name := range removed {
		d.logger.Info("Deleted user", zap.String("name", name))
	}
	return len(removed), nil
}

// addUser creates, names and indexes a user and links it from the
// reference node.
func addUser(tx *graphdb.Tx, name string) (graph.ID, error) {
	if name == "" {
		return 0, fmt.Errorf("user name is empty: %w", graph.ErrConstraintViolation)
	}
	value := graph.String(name)
	if _, exists, err := tx.Lookup(NameKey, value); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("user %q already exists: %w", name, graph.ErrConstraintViolation)
	}

	id, err := tx.CreateNode()
	if err != nil {
		return 0, err
	}
	if err := tx.SetProperty(id, NameKey, value); err != nil {
		return 0, err
	}
	if err := tx.IndexPut(NameKey, value, id); err != nil {
		return 0, err
	}
	if _, err := tx.CreateRelationship(graph.RootID, id, graph.User); err != nil {
		return 0, err
	}
	return id, nil
}

func befriend(tx *graphdb.Tx, a, b string) error {
	if a == b {
		return fmt.Errorf("user %q cannot befriend themselves: %w", a, graph.ErrConstraintViolation)
	}
	ids := make([]graph.ID, 2)
	for i, name := range []string{a, b} {
		id, found, err := tx.Lookup(NameKey, graph.String(name))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("user %q: %w", name, graph.ErrNotFound)
		}
		ids[i] = id
	}

	existing, err := tx.Relationships(ids[0], graph.Outgoing, graph.IsFriendOf)
	if err != nil {
		return err
	}
	ends := make([]graph.ID, 0, len(existing))
	for _, relID := range existing {
		rel, err := tx.Relationship(relID)
		if err != nil {
			return err
		}
		ends = append(ends, rel.End)
	}
	if slices.Contains(ends, ids[1]) {
		return nil
	}

	if _, err := tx.CreateRelationship(ids[0], ids[1], graph.IsFriendOf); err != nil {
		return err
	}
	_, err = tx.CreateRelationship(ids[1], ids[0], graph.IsFriendOf)
	return err
}
