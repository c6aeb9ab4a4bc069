package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const productsCollection = "products"

// productDoc mirrors the document shape written by earlier deployments of the
// shop, so existing collections can be served as-is.
type productDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        *string            `bson:"name,omitempty"`
	Description *string            `bson:"description,omitempty"`
	Price       *float64           `bson:"price,omitempty"`
	ImageURL    *string            `bson:"imageUrl,omitempty"`
}

func (d productDoc) product() Product {
	return Product{
		ID: d.ID.Hex(),
		Fields: Fields{
			Name:        d.Name,
			Description: d.Description,
			Price:       d.Price,
			ImageURL:    d.ImageURL,
		},
	}
}

func docFromFields(f Fields) productDoc {
	return productDoc{
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		ImageURL:    f.ImageURL,
	}
}

type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to uri and returns a store over database.products.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return NewMongoStore(client, client.Database(database).Collection(productsCollection)), nil
}

func NewMongoStore(client *mongo.Client, coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, coll: coll}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.client.Ping(ctx, readpref.Primary())
	})
}

func (s *MongoStore) List(ctx context.Context) ([]Product, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) Get(ctx context.Context, id string) (Product, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Product{}, false, nil
	}

	var doc productDoc
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return doc.product(), true, nil
}

func (s *MongoStore) FindByIDs(ctx context.Context, ids []string) ([]Product, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []Product{}, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": oids}})
}

func (s *MongoStore) Create(ctx context.Context, f Fields) (Product, error) {
	doc := docFromFields(f)
	doc.ID = primitive.NewObjectID()

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return doc.product(), nil
}

func (s *MongoStore) Update(ctx context.Context, id string, f Fields) (Product, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Product{}, false, nil
	}

	var doc productDoc
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		opts := options.FindOneAndReplace().SetReturnDocument(options.After)
		return s.coll.FindOneAndReplace(ctx, bson.M{"_id": oid}, docFromFields(f), opts).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return doc.product(), true, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	var res *mongo.DeleteResult
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		res, err = s.coll.DeleteOne(ctx, bson.M{"_id": oid})
		return err
	})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]Product, error) {
	var docs []productDoc

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.product())
	}
	return out, nil
}
