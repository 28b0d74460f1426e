package crmledger

import "github.com/xraph/crmledger/id"

// ID is the primary identifier type for all crmledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
