package elastic_search

import (
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/marketplace"
)

// ListingDocument is a listing as stored in a snapshot index.
type ListingDocument struct {
	entity.Listing
	Network    string    `json:"network"`
	SnapshotAt time.Time `json:"snapshotAt"`
}

func CreateListingDocuments(snapshot *marketplace.Snapshot) []entity.Entity {
	docs := make([]entity.Entity, 0, len(snapshot.Listings))
	for _, l := range snapshot.Listings {
		docs = append(docs, ListingDocument{
			Listing:    l,
			Network:    snapshot.Network,
			SnapshotAt: snapshot.CreatedAt,
		})
	}
	return docs
}
