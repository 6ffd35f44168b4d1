package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current time in UTC truncated to what BSON dates can hold
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// IsDuplicateKey reports whether err is a unique index violation,
// including one raised inside an aborted transaction
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsNotFound reports whether err is mongo.ErrNoDocuments
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
