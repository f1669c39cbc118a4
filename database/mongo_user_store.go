package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type userDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Name         string        `bson:"name"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"passwordHash"`
	Role         string        `bson:"role"`
	IsActive     bool          `bson:"isActive"`

	RefreshTokenHash      string     `bson:"refreshTokenHash,omitempty"`
	RefreshTokenExpiresAt *time.Time `bson:"refreshTokenExpiresAt,omitempty"`
	ResetCodeHash         string     `bson:"resetCodeHash,omitempty"`
	ResetCodeExpiresAt    *time.Time `bson:"resetCodeExpiresAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d userDocument) model() models.User {
	return models.User{
		ID:                    d.ID.Hex(),
		Name:                  d.Name,
		Email:                 d.Email,
		PasswordHash:          d.PasswordHash,
		Role:                  auth.Role(d.Role),
		IsActive:              d.IsActive,
		RefreshTokenHash:      d.RefreshTokenHash,
		RefreshTokenExpiresAt: d.RefreshTokenExpiresAt,
		ResetCodeHash:         d.ResetCodeHash,
		ResetCodeExpiresAt:    d.ResetCodeExpiresAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

type MongoUserStore struct {
	col     *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

func NewMongoUserStore(db *mongo.Database, timeout time.Duration) *MongoUserStore {
	return &MongoUserStore{col: db.Collection(usersCollection), timeout: timeout, now: time.Now}
}

func (s *MongoUserStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.col.Database().Client().Ping(ctx, nil)
}

func (s *MongoUserStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	doc := userDocument{
		ID:           bson.NewObjectID(),
		Name:         u.Name,
		Email:        normalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return storageErr("insert user", err)
	}
	*u = doc.model()
	return nil
}

func (s *MongoUserStore) EnsureAdmin(ctx context.Context, u *models.User) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	email := normalizeEmail(u.Email)
	filter := bson.M{"email": email}
	update := bson.M{
		"$setOnInsert": bson.M{
			"name":         u.Name,
			"email":        email,
			"passwordHash": u.PasswordHash,
			"role":         string(auth.RoleAdmin),
			"isActive":     true,
			"createdAt":    now,
			"updatedAt":    now,
		},
	}
	res, err := s.col.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return false, storageErr("seed admin", err)
	}
	return res.UpsertedCount == 1, nil
}

func (s *MongoUserStore) GetUser(ctx context.Context, id string) (models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, auth.ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoUserStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var doc userDocument
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, auth.ErrUserNotFound
		}
		return models.User{}, storageErr("find user", err)
	}
	return doc.model(), nil
}

func (s *MongoUserStore) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storageErr("list users", err)
	}
	out := make([]models.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *MongoUserStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, auth.ErrUserNotFound
	}
	set := bson.M{"updatedAt": s.now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = normalizeEmail(*patch.Email)
	}
	if patch.Role != nil {
		set["role"] = string(*patch.Role)
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var doc userDocument
	err = s.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, auth.ErrUserNotFound
	case isDuplicateKey(err):
		return models.User{}, ErrDuplicateEmail
	case err != nil:
		return models.User{}, storageErr("update user", err)
	}
	return doc.model(), nil
}

func (s *MongoUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateByID(ctx, "update password", id, bson.M{
		"$set": bson.M{"passwordHash": passwordHash, "updatedAt": s.now().UTC()},
	})
}

func (s *MongoUserStore) DeleteUser(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return auth.ErrUserNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storageErr("delete user", err)
	}
	if res.DeletedCount == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// auth.CredentialStore

func (s *MongoUserStore) GetByID(ctx context.Context, userID string) (auth.UserRecord, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return u.Record(), nil
}

func (s *MongoUserStore) GetByEmail(ctx context.Context, email string) (auth.UserRecord, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return u.Record(), nil
}

func (s *MongoUserStore) SetRefreshCredential(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	update := bson.M{"$unset": bson.M{"refreshTokenHash": "", "refreshTokenExpiresAt": ""}}
	if hash != "" {
		update = bson.M{"$set": bson.M{"refreshTokenHash": hash, "refreshTokenExpiresAt": expiresAt.UTC()}}
	}
	return s.updateByID(ctx, "set refresh credential", userID, update)
}

func (s *MongoUserStore) RotateRefreshCredential(ctx context.Context, userID, expectedHash, newHash string, expiresAt time.Time) (bool, error) {
	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil || expectedHash == "" {
		return false, nil
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "refreshTokenHash": expectedHash},
		bson.M{"$set": bson.M{"refreshTokenHash": newHash, "refreshTokenExpiresAt": expiresAt.UTC()}},
	)
	if err != nil {
		return false, storageErr("rotate refresh credential", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoUserStore) SetResetCredential(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	return s.updateByID(ctx, "set reset credential", userID, bson.M{
		"$set": bson.M{"resetCodeHash": hash, "resetCodeExpiresAt": expiresAt.UTC()},
	})
}

func (s *MongoUserStore) ClearResetCredential(ctx context.Context, userID string) error {
	return s.updateByID(ctx, "clear reset credential", userID, bson.M{
		"$unset": bson.M{"resetCodeHash": "", "resetCodeExpiresAt": ""},
	})
}

func (s *MongoUserStore) GetResetCredential(ctx context.Context, userID string) (*auth.ResetCredential, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ResetCodeHash == "" || u.ResetCodeExpiresAt == nil {
		return nil, nil
	}
	return &auth.ResetCredential{Hash: u.ResetCodeHash, ExpiresAt: *u.ResetCodeExpiresAt}, nil
}

func (s *MongoUserStore) updateByID(ctx context.Context, op, id string, update bson.M) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return auth.ErrUserNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return storageErr(op, err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
