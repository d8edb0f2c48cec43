package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"freight-settlement-service/internal/model"
)

var (
	ErrNotFound        = errors.New("documento no encontrado")
	ErrVersionConflict = errors.New("conflicto de versión: otro request escribió primero")
)

// Mongo implementation
type MongoOrderRepository struct {
	col *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{col: db.Collection("freight_orders")}
}

func (m *MongoOrderRepository) Insert(ctx context.Context, o *model.Order) error {
	_, err := m.col.InsertOne(ctx, o)
	return err
}

func (m *MongoOrderRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	var res model.Order
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return &res, err
}

// ReplaceVersioned es la escritura compare-and-swap del pedido: el filtro
// exige la versión leída y el reemplazo lleva versión + 1. Si otro request
// escribió en el medio, MatchedCount es 0 y el caller debe releer.
func (m *MongoOrderRepository) ReplaceVersioned(ctx context.Context, o *model.Order) error {
	prev := o.Version
	o.Version = prev + 1
	o.UpdatedAt = time.Now().UTC()

	res, err := m.col.ReplaceOne(ctx, bson.M{"_id": o.ID, "version": prev}, o)
	if err != nil {
		o.Version = prev
		return err
	}
	if res.MatchedCount == 0 {
		o.Version = prev
		// Puede ser versión vieja o documento inexistente; distinguimos.
		if cnt, cerr := m.col.CountDocuments(ctx, bson.M{"_id": o.ID}); cerr == nil && cnt == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// FindByParty lista los pedidos donde el usuario participa, con filtro
// opcional por rol y estado.
func (m *MongoOrderRepository) FindByParty(ctx context.Context, userID, role string, status model.Status) ([]*model.Order, error) {
	var filter bson.M
	switch role {
	case "buyer":
		filter = bson.M{"buyer_id": userID}
	case "seller":
		filter = bson.M{"seller_id": userID}
	case "carrier":
		filter = bson.M{"carrier_id": userID}
	default:
		filter = bson.M{"$or": []bson.M{
			{"buyer_id": userID},
			{"seller_id": userID},
			{"carrier_id": userID},
		}}
	}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.Order
	for cur.Next(ctx) {
		var v model.Order
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
