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

// ErrEscrowStateGate: la actualización condicional no encontró un documento
// en alguno de los estados de origen permitidos.
var ErrEscrowStateGate = errors.New("el escrow no está en un estado que permita la transición")

type MongoEscrowRepository struct {
	col *mongo.Collection
}

func NewMongoEscrowRepository(db *mongo.Database) *MongoEscrowRepository {
	return &MongoEscrowRepository{col: db.Collection("escrow_records")}
}

// EnsureHeld crea el registro en held si no existe. Repetir la llamada para
// el mismo orderId devuelve siempre el documento ya guardado.
func (m *MongoEscrowRepository) EnsureHeld(ctx context.Context, rec *model.EscrowRecord) (*model.EscrowRecord, error) {
	filter := bson.M{"_id": rec.OrderID}
	update := bson.M{"$setOnInsert": rec}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored model.EscrowRecord
	if err := m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (m *MongoEscrowRepository) FindByOrderID(ctx context.Context, orderID string) (*model.EscrowRecord, error) {
	var res model.EscrowRecord
	err := m.col.FindOne(ctx, bson.M{"_id": orderID}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return &res, err
}

// TransitionState cambia el estado en una sola operación atómica: el filtro
// exige uno de los estados de origen, así dos requests concurrentes nunca
// mueven los fondos dos veces.
func (m *MongoEscrowRepository) TransitionState(ctx context.Context, orderID string, from []model.EscrowState, to model.EscrowState, reason string) (*model.EscrowRecord, error) {
	set := bson.M{"state": to}
	if to.IsTerminal() {
		set["resolved_at"] = time.Now().UTC()
	}
	if reason != "" {
		set["dispute_reason"] = reason
	}

	filter := bson.M{"_id": orderID, "state": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var res model.EscrowRecord
	err := m.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrEscrowStateGate
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// FindByUser lista los registros donde el usuario paga o cobra.
func (m *MongoEscrowRepository) FindByUser(ctx context.Context, userID string) ([]*model.EscrowRecord, error) {
	filter := bson.M{"$or": []bson.M{
		{"payer_id": userID},
		{"payee_id": userID},
	}}
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.EscrowRecord
	for cur.Next(ctx) {
		var v model.EscrowRecord
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
