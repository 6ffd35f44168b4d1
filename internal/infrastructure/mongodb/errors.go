package mongodb

import "errors"

// errStaleHead aborts an append transaction whose expected version is not the stream head
var errStaleHead = errors.New("expected version is not the stream head")
