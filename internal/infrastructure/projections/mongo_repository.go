package projections

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongodbpkg "github.com/wms-platform/stock-engine/pkg/mongodb"
)

// CollectionName is the collection holding available stock views
const CollectionName = "available_stock_views"

// maxUpdateAttempts bounds the read-modify-write loop in Update
const maxUpdateAttempts = 10

// MongoAvailableStockRepository is the MongoDB implementation
type MongoAvailableStockRepository struct {
	collection *mongo.Collection
	instr      *mongodbpkg.Instrumentation
	now        func() time.Time
}

// NewMongoAvailableStockRepository creates a new repository
func NewMongoAvailableStockRepository(db *mongo.Database, instr *mongodbpkg.Instrumentation) *MongoAvailableStockRepository {
	return &MongoAvailableStockRepository{
		collection: db.Collection(CollectionName),
		instr:      instr,
		now:        mongodbpkg.Now,
	}
}

// EnsureIndexes creates the indexes used by FindWithFilter
func (r *MongoAvailableStockRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "warehouseId", Value: 1}, {Key: "sku", Value: 1}, {Key: "location", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "warehouseId", Value: 1}, {Key: "location", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "availableQty", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Update reads the view, applies fn and writes it back guarded by the stored version.
// A first write races other writers through the unique _id.
func (r *MongoAvailableStockRepository) Update(ctx context.Context, warehouseID, location, sku string, fn UpdateFunc) error {
	key := ViewKey(warehouseID, location, sku)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.FindByKey(ctx, warehouseID, location, sku)
		if err != nil {
			return err
		}

		base := NewAvailableStockView(warehouseID, location, sku)
		if current != nil {
			base = *current
		}

		next, changed := fn(base)
		if !changed {
			return nil
		}
		next.Key = key
		next.Version = base.Version + 1
		next.UpdatedAt = r.now()

		if current == nil {
			err = r.instr.Observe(ctx, CollectionName, "insert", func(ctx context.Context) error {
				_, err := r.collection.InsertOne(ctx, next)
				return err
			})
			if mongodbpkg.IsDuplicateKey(err) {
				continue
			}
			return err
		}

		var matched int64
		err = r.instr.Observe(ctx, CollectionName, "replace", func(ctx context.Context) error {
			res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": key, "version": base.Version}, next)
			if err != nil {
				return err
			}
			matched = res.MatchedCount
			return nil
		})
		if err != nil {
			return err
		}
		if matched == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrViewConflict, key)
}

// FindByKey retrieves a view by its partition
func (r *MongoAvailableStockRepository) FindByKey(ctx context.Context, warehouseID, location, sku string) (*AvailableStockView, error) {
	var view AvailableStockView
	err := r.instr.Observe(ctx, CollectionName, "find", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": ViewKey(warehouseID, location, sku)}).Decode(&view)
	})
	if err != nil {
		if mongodbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

// FindWithFilter retrieves views matching filter criteria with pagination
func (r *MongoAvailableStockRepository) FindWithFilter(ctx context.Context, filter AvailableStockFilter, page Pagination) (*PagedResult[AvailableStockView], error) {
	query := r.buildFilterQuery(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}

	sortField := page.SortBy
	if sortField == "" {
		sortField = "updatedAt"
	}
	sortOrder := -1
	if page.SortOrder == "asc" {
		sortOrder = 1
	}
	opts.SetSort(bson.D{{Key: sortField, Value: sortOrder}})

	var views []AvailableStockView
	err = r.instr.Observe(ctx, CollectionName, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, query, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &views)
	})
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []AvailableStockView{}
	}

	return &PagedResult[AvailableStockView]{
		Items:   views,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: int64(page.Offset+len(views)) < total,
	}, nil
}

func (r *MongoAvailableStockRepository) buildFilterQuery(filter AvailableStockFilter) bson.M {
	query := bson.M{}

	if filter.WarehouseID != nil {
		query["warehouseId"] = *filter.WarehouseID
	}
	if filter.SKU != nil {
		query["sku"] = *filter.SKU
	}
	if filter.Location != nil {
		query["location"] = *filter.Location
	}
	if filter.MinAvailable != nil {
		query["availableQty"] = bson.M{"$gte": *filter.MinAvailable}
	}

	return query
}
